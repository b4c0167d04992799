package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"messbook/internal/config"
	"messbook/internal/domain"
	"messbook/internal/models"
	"messbook/internal/policy"

	"github.com/rs/zerolog"
)

// ListingService changes the few listing fields the coordinator owns:
// hidden flag, available count and gallery.
type ListingService struct {
	store  domain.ListingStore
	policy *policy.Policy
	logger *zerolog.Logger
}

func NewListingService(store domain.ListingStore, pol *policy.Policy, logger *zerolog.Logger) *ListingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ListingService{store: store, policy: pol, logger: logger}
}

// List returns visible listings; hidden ones only to those who manage them.
func (s *ListingService) List(ctx context.Context, actor models.Actor) ([]*models.Listing, error) {
	all, err := s.store.ListListings(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Listing, 0, len(all))
	for _, l := range all {
		if l.Hidden && !s.policy.CanManageListing(actor, l, policy.ListingHide) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *ListingService) Units(ctx context.Context, actor models.Actor, listingID string) ([]*models.Unit, error) {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Hidden && !s.policy.CanManageListing(actor, l, policy.ListingHide) {
		return nil, domain.ErrNotFound
	}
	return s.store.ListUnits(ctx, listingID)
}

func (s *ListingService) SetHidden(ctx context.Context, actor models.Actor, id string, hidden bool) error {
	if _, err := s.authorize(ctx, actor, id, policy.ListingHide); err != nil {
		return err
	}
	if err := s.store.SetListingHidden(ctx, id, hidden); err != nil {
		return err
	}
	s.logger.Info().Str("listing_id", id).Bool("hidden", hidden).Str("actor_id", actor.ID).Msg("listing visibility changed")
	return nil
}

// AdjustAvailability adds delta to the available count. The store refuses
// to go below zero with ErrNoCapacity.
func (s *ListingService) AdjustAvailability(ctx context.Context, actor models.Actor, id string, delta int64) (int64, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", domain.ErrInvalidInput)
	}
	if _, err := s.authorize(ctx, actor, id, policy.ListingAvailability); err != nil {
		return 0, err
	}
	count, err := s.store.AdjustAvailableCount(ctx, id, delta)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("listing_id", id).Int64("delta", delta).Int64("available", count).Msg("availability adjusted")
	return count, nil
}

// AppendGalleryImage reads the gallery, appends imageURL and writes the
// whole array back. Two concurrent appends do not merge: the later write
// replaces the earlier one.
func (s *ListingService) AppendGalleryImage(ctx context.Context, actor models.Actor, id, imageURL string) ([]string, error) {
	if err := validateImageURL(imageURL); err != nil {
		return nil, err
	}
	l, err := s.authorize(ctx, actor, id, policy.ListingGallery)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(l.GalleryURLs)+1)
	urls = append(urls, l.GalleryURLs...)
	urls = append(urls, strings.TrimSpace(imageURL))

	if err := s.store.SetGallery(ctx, id, urls); err != nil {
		return nil, err
	}
	s.logger.Info().Str("listing_id", id).Int("images", len(urls)).Msg("gallery image appended")
	return urls, nil
}

// SetGallery overwrites the gallery.
func (s *ListingService) SetGallery(ctx context.Context, actor models.Actor, id string, urls []string) error {
	for _, u := range urls {
		if err := validateImageURL(u); err != nil {
			return err
		}
	}
	if _, err := s.authorize(ctx, actor, id, policy.ListingGallery); err != nil {
		return err
	}
	return s.store.SetGallery(ctx, id, urls)
}

func (s *ListingService) authorize(ctx context.Context, actor models.Actor, id string, action policy.ListingAction) (*models.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanManageListing(actor, l, action) {
		s.logger.Warn().
			Str("action", string(action)).
			Str("listing_id", id).
			Str("actor_role", string(actor.Role)).
			Str("actor_id", actor.ID).
			Msg("unauthorized")
		return nil, fmt.Errorf("%w: %s listing", domain.ErrUnauthorized, action)
	}
	return l, nil
}

func validateImageURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: bad image url %q", domain.ErrInvalidInput, raw)
	}
	return nil
}

// ListingSeeder writes listing profiles loaded from configuration.
type ListingSeeder interface {
	UpsertListing(ctx context.Context, l *models.Listing) error
	UpsertUnit(ctx context.Context, u *models.Unit) error
}

// SeedListings upserts configured listings and their units.
func SeedListings(ctx context.Context, seeder ListingSeeder, seeds []config.ListingSeed, logger *zerolog.Logger) error {
	for i := range seeds {
		l := seeds[i].Listing
		if err := seeder.UpsertListing(ctx, &l); err != nil {
			return fmt.Errorf("seed listing %q: %w", l.Name, err)
		}
		for j := range seeds[i].Units {
			u := seeds[i].Units[j]
			u.ListingID = l.ID
			if err := seeder.UpsertUnit(ctx, &u); err != nil {
				return fmt.Errorf("seed unit %q of %q: %w", u.Title, l.Name, err)
			}
		}
	}
	if logger != nil {
		logger.Info().Int("listings", len(seeds)).Msg("listings seeded")
	}
	return nil
}
