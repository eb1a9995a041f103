package events

import (
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

// Event is the payload published downstream when a posting is ingested.
type Event struct {
	SourceID   string         `json:"source_id"`
	SourceName string         `json:"source_name"`
	Posting    domain.Posting `json:"posting"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// NewEvent constructs an Event for the given source + posting.
func NewEvent(sourceID, sourceName string, posting domain.Posting) Event {
	return Event{
		SourceID:   sourceID,
		SourceName: sourceName,
		Posting:    posting,
		IngestedAt: time.Now().UTC(),
	}
}
