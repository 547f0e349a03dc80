// Package webhooks contains webhook verification and dispatch components.
//
// Delivery processing is driven by a claim lifecycle:
// processing -> processed|failed.
// A failed delivery, or a processing claim whose lease ran out, may be claimed
// again when the provider redelivers it.
package webhooks
