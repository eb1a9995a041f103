package crawler

import (
	"context"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/pkg/events"
)

// PostingLedger is the slice of the store the orchestrator needs.
type PostingLedger interface {
	ExistingLinks(category string, links []string) (map[string]bool, error)
	InsertPostings(postings []domain.Posting) ([]domain.Posting, error)
	ReconcilePins(category string, observed map[string]bool, staleBefore time.Time) error
}

// Notifier hands newly persisted postings to the notification pipeline.
type Notifier interface {
	Dispatch(ctx context.Context, postings []domain.Posting) error
}

// IngestPublisher fans posting-ingested events out to configured sinks.
type IngestPublisher interface {
	Publish(ctx context.Context, evt events.Event) (int, error)
}
