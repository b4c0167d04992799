package models

// Actor is the caller on whose behalf an operation runs.
// Authentication happens outside the coordinator; the zero Actor is anonymous.
type Actor struct {
	Role            Role     `json:"role" yaml:"role"`
	ID              string   `json:"id" yaml:"id"`
	OwnedListingIDs []string `json:"owned_listing_ids" yaml:"owned_listing_ids"`
}

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool {
	return a.Role == RoleAnonymous || a.ID == ""
}

// OwnsListing reports whether listingID is among the actor's listings.
func (a Actor) OwnsListing(listingID string) bool {
	if listingID == "" {
		return false
	}
	for _, id := range a.OwnedListingIDs {
		if id == listingID {
			return true
		}
	}
	return false
}

// SystemActor is used by in-process watchers that need the operator view.
var SystemActor = Actor{Role: RoleOperator, ID: "system"}
