package model

// StorefrontInfo is the slice of storefront metadata the core needs from
// the platform directory: who gets paid and whether the storefront's
// traffic earns raffle tickets.
type StorefrontInfo struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	RaffleEligible bool   `json:"raffle_eligible"`
}
