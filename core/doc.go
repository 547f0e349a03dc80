// Package core contains the relay's domain contracts, configuration, sale rules and
// the notification service. Marketplace, transport and storage adapters depend on
// this package; core must not depend on them.
package core
