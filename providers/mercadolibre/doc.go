// Package mercadolibre talks to the marketplace: refresh-token exchange, order lookups
// and the notification webhook template.
package mercadolibre
