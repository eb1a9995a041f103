// Package summary serves on-demand posting summaries, generating and
// caching them on first request.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/internal/logger"
	"github.com/Shin-In-Gyu/DBtest/pkg/sources"
	"github.com/Shin-In-Gyu/DBtest/pkg/summarizer"
)

// PostingStore is the slice of the store the summary service needs.
type PostingStore interface {
	GetPosting(id uint64) (*domain.Posting, error)
	UpdateContent(id uint64, content string, images []string) error
	SaveSummary(id uint64, summary string) error
}

// Service resolves summaries lazily: cached value first, then a fresh
// generation, rescraping the posting body when the stored one is too
// thin to summarize.
type Service struct {
	store      PostingStore
	summarizer summarizer.Summarizer
	registry   *sources.Registry
	adapters   sources.AdapterRegistry
	log        logger.Logger
}

func NewService(store PostingStore, sum summarizer.Summarizer, registry *sources.Registry, adapters sources.AdapterRegistry, log logger.Logger) *Service {
	if sum == nil {
		sum = summarizer.Disabled{}
	}
	return &Service{
		store:      store,
		summarizer: sum,
		registry:   registry,
		adapters:   adapters,
		log:        logger.Ensure(log),
	}
}

// GetOrCreate returns the posting's summary, generating and persisting
// it on first request. Generation failures surface as placeholder text,
// never as an error; errors are reserved for missing postings and
// storage faults.
func (s *Service) GetOrCreate(ctx context.Context, postingID uint64) (string, error) {
	posting, err := s.store.GetPosting(postingID)
	if err != nil {
		return "", fmt.Errorf("load posting %d: %w", postingID, err)
	}
	if posting.Summary != "" {
		return posting.Summary, nil
	}

	content := posting.Content
	images := posting.Images
	if len([]rune(strings.TrimSpace(content))) < summarizer.MinContentLength {
		if detail := s.rescrape(ctx, posting); detail != nil {
			content = strings.Join(detail.Paragraphs, "\n")
			images = detail.Images
			if err := s.store.UpdateContent(posting.ID, content, images); err != nil {
				s.log.WarnObj("content refresh persist failed", "content_error", map[string]any{
					"posting_id": posting.ID,
					"error":      err.Error(),
				})
			}
		}
	}

	generated := s.summarizer.Summarize(ctx, content, images)
	if err := s.store.SaveSummary(posting.ID, generated); err != nil {
		return "", fmt.Errorf("save summary for posting %d: %w", posting.ID, err)
	}
	return generated, nil
}

// rescrape refetches the posting's detail page through its source
// adapter. Returns nil when the source is unknown or the fetch fails.
func (s *Service) rescrape(ctx context.Context, posting *domain.Posting) *domain.NoticeDetail {
	if s.registry == nil || s.adapters == nil {
		return nil
	}
	src, ok := s.sourceForCategory(posting.Category)
	if !ok {
		s.log.WarnObj("no source for category", "category", posting.Category)
		return nil
	}
	adapter, err := s.adapters.AdapterFor(src)
	if err != nil {
		s.log.WarnObj("adapter resolution failed", "adapter_error", err.Error())
		return nil
	}
	detail, err := adapter.ParseDetail(ctx, src, posting.Link)
	if err != nil {
		s.log.WarnObj("detail refetch failed", "refetch_error", map[string]any{
			"posting_id": posting.ID,
			"link":       posting.Link,
			"error":      err.Error(),
		})
		return nil
	}
	return detail
}

func (s *Service) sourceForCategory(category string) (sources.Source, bool) {
	for _, src := range s.registry.All() {
		if src.Category == category {
			return src, true
		}
	}
	return sources.Source{}, false
}
