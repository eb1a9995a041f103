package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

// Package storage provides the durable posting ledger and subscription data.

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable ledger of postings, devices, subscriptions and
// notification history. Implementations must enforce uniqueness of
// (category, link) and of (device, posting) atomically at commit time.
type Store interface {
	Close() error

	// Crawl side.
	ExistingLinks(category string, links []string) (map[string]bool, error)
	InsertPostings(postings []domain.Posting) ([]domain.Posting, error)
	ReconcilePins(category string, observed map[string]bool, staleBefore time.Time) error

	// Notification side.
	SubscribersFor(categories []string) (map[string][]domain.Device, error)
	SentPairs(postingIDs []uint64) (map[string]struct{}, error)
	CommitDispatch(notifiedIDs []uint64, records []domain.NotificationRecord, deadTokens []string) error

	// Summaries and the read API surface.
	GetPosting(id uint64) (*domain.Posting, error)
	UpdateContent(id uint64, content string, images []string) error
	SaveSummary(id uint64, summary string) error
	PostingsByCategory(category string, offset, limit int) ([]domain.Posting, error)
	IncrementAppViews(id uint64) error

	// Subscription records are owned by the API layer; these exist for it
	// and for seeding tests.
	RegisterDevice(token string) (domain.Device, error)
	Subscribe(deviceID uint64, category string) error
}

// PairKey identifies one (device, posting) notification edge.
func PairKey(deviceID, postingID uint64) string {
	return fmt.Sprintf("%d:%d", deviceID, postingID)
}

// NewStore creates the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}
