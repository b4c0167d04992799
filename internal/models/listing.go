package models

import "time"

// Listing is a mess/hostel profile owned by a partner.
type Listing struct {
	ID             string    `json:"id" yaml:"id"`
	PartnerID      string    `json:"partner_id" yaml:"partner_id"`
	Name           string    `json:"name" yaml:"name"`
	Address        string    `json:"address" yaml:"address"`
	Hidden         bool      `json:"hidden" yaml:"hidden"`
	AvailableCount int64     `json:"available_count" yaml:"available_count"`
	GalleryURLs    []string  `json:"gallery_urls" yaml:"gallery_urls"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

// Unit is a bookable room type inside a listing.
type Unit struct {
	ID          string `json:"id" yaml:"id"`
	ListingID   string `json:"listing_id" yaml:"listing_id"`
	Title       string `json:"title" yaml:"title"`
	Capacity    int64  `json:"capacity" yaml:"capacity"`
	MonthlyRent int64  `json:"monthly_rent" yaml:"monthly_rent"`
}
