package domain

import (
	"context"

	"messbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RecordQuerier is the read side of the record store.
type RecordQuerier interface {
	QueryRecords(ctx context.Context, filter models.RecordFilter) ([]*models.Record, error)
}

// RecordStore is the only persistence boundary for requests.
type RecordStore interface {
	RecordQuerier
	CreateRecord(ctx context.Context, rec *models.Record) error
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	UpdateRecord(ctx context.Context, id string, patch models.RecordPatch) (*models.Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

// ListingReader resolves listing names for messages and ownership checks.
type ListingReader interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
}

// ListingCatalog checks record targets: the listing and its units.
type ListingCatalog interface {
	ListingReader
	ListUnits(ctx context.Context, listingID string) ([]*models.Unit, error)
}

type ListingStore interface {
	ListingCatalog
	ListListings(ctx context.Context, includeHidden bool) ([]*models.Listing, error)
	SetListingHidden(ctx context.Context, id string, hidden bool) error
	AdjustAvailableCount(ctx context.Context, id string, delta int64) (int64, error)
	SetGallery(ctx context.Context, id string, urls []string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// StatusLedger remembers the last status notified per record id.
// Advance reports true only when status is new for the record and is not a
// regression from a terminal status.
type StatusLedger interface {
	Advance(ctx context.Context, recordID string, status models.Status, terminal bool) (bool, error)
	LastSeen(ctx context.Context, recordID string) (models.Status, bool, error)
	Forget(ctx context.Context, recordID string) error
}

// Channel delivers a formatted message to an external chat.
// Implementations report failure through the return value and never panic.
type Channel interface {
	Send(ctx context.Context, message string) bool
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
}
