package cachecontrol

import "time"

// Cache lifetimes per resource type. Lookups change rarely; KPI and hub
// dashboards are refreshed by background jobs every few minutes.
const (
	LookupTTL      = 5 * time.Minute
	LookupStaleTTL = time.Minute
	TripTTL        = 30 * time.Second
	TripStaleTTL   = 30 * time.Second
	KPITTL         = 2 * time.Minute
	KPIStaleTTL    = 5 * time.Minute
	HubTTL         = 10 * time.Minute
	HubStaleTTL    = 10 * time.Minute
)

// Lookup is used for user and processor lookups.
func Lookup() string {
	return Build(For(ScopePrivate, LookupTTL, LookupStaleTTL))
}

// Trip is used for dispatch trip listings.
func Trip() string {
	return Build(For(ScopePrivate, TripTTL, TripStaleTTL))
}

// KPI is used for KPI dashboards.
func KPI() string {
	return Build(For(ScopePrivate, KPITTL, KPIStaleTTL))
}

// Hub is used for hub reference data.
func Hub() string {
	return Build(For(ScopePrivate, HubTTL, HubStaleTTL))
}
