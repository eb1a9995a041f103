package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/internal/logger"
	"github.com/Shin-In-Gyu/DBtest/pkg/events"
	"github.com/Shin-In-Gyu/DBtest/pkg/sources"
)

// Service coordinates crawling across all configured board sources: one
// listing fetch per source, reconciliation against the ledger, gated
// concurrent detail fetches, one insert transaction, and the hand-off of
// inserted postings to the notifier.
type Service struct {
	registry   sources.AdapterRegistry
	store      PostingLedger
	notifier   Notifier
	events     IngestPublisher
	gate       *Gate
	staleAfter time.Duration
	log        logger.Logger
}

// NewService wires a crawler with the site-family adapter registry.
// notifier and ingestPub may be nil (soft-disabled collaborators).
func NewService(reg sources.AdapterRegistry, store PostingLedger, notifier Notifier, ingestPub IngestPublisher, gate *Gate, staleAfter time.Duration, log logger.Logger) *Service {
	if gate == nil {
		gate = NewGate(3, 500*time.Millisecond)
	}
	if staleAfter <= 0 {
		staleAfter = 30 * 24 * time.Hour
	}
	return &Service{
		registry:   reg,
		store:      store,
		notifier:   notifier,
		events:     ingestPub,
		gate:       gate,
		staleAfter: staleAfter,
		log:        logger.Ensure(log),
	}
}

// Run executes one crawl pass over all sources, sequentially, pausing
// between categories. A failing category never aborts the others.
func (s *Service) Run(ctx context.Context, srcs []sources.Source, pause time.Duration) error {
	if s == nil || s.registry == nil || s.store == nil {
		return fmt.Errorf("crawler service is not initialized")
	}
	if len(srcs) == 0 {
		return fmt.Errorf("no sources configured for crawling")
	}

	var errs []error
	for i, src := range srcs {
		if ctx.Err() != nil {
			break
		}
		if err := s.CrawlCategory(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			s.log.ErrorObj("source crawl failed", "source_error", map[string]any{
				"source_id": src.ID,
				"category":  src.Category,
				"error":     err.Error(),
			})
		}

		if pause > 0 && i < len(srcs)-1 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(errs...)
			case <-timer.C:
			}
		}
	}
	return errors.Join(errs...)
}

// CrawlCategory performs one crawl pass for a single source.
func (s *Service) CrawlCategory(ctx context.Context, src sources.Source) error {
	adapter, err := s.registry.AdapterFor(src)
	if err != nil {
		return fmt.Errorf("resolve adapter: %w", err)
	}

	candidates, err := adapter.ListCandidates(ctx, src)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		s.log.InfoObj("listing empty or unparseable", "source_id", src.ID)
		return nil
	}

	candidates = dedupeCandidates(candidates)
	observed := make(map[string]bool, len(candidates))
	links := make([]string, 0, len(candidates))
	for _, c := range candidates {
		observed[c.Link] = c.Pinned
		links = append(links, c.Link)
	}

	existing, err := s.store.ExistingLinks(src.Category, links)
	if err != nil {
		return fmt.Errorf("existing links lookup: %w", err)
	}

	// Pin state is advisory; a failure here never aborts the crawl.
	staleBefore := time.Now().UTC().Add(-s.staleAfter)
	if err := s.store.ReconcilePins(src.Category, observed, staleBefore); err != nil {
		s.log.WarnObj("pin reconciliation failed", "pin_error", map[string]any{
			"source_id": src.ID,
			"error":     err.Error(),
		})
	}

	var fresh []domain.Candidate
	for _, c := range candidates {
		if !existing[c.Link] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	s.log.InfoObj("fetching new posting details", "detail_meta", map[string]any{
		"source_id": src.ID,
		"category":  src.Category,
		"count":     len(fresh),
	})

	details := s.fetchDetails(ctx, adapter, src, fresh)
	if ctx.Err() != nil {
		// Cancelled mid-pass: discard fetched results rather than
		// persisting a partial batch.
		return ctx.Err()
	}

	batch := buildPostings(src.Category, fresh, details)
	if len(batch) == 0 {
		return nil
	}

	inserted, err := s.store.InsertPostings(batch)
	if err != nil {
		return fmt.Errorf("insert postings: %w", err)
	}
	s.log.InfoObj("crawl pass persisted postings", "insert_meta", map[string]any{
		"source_id": src.ID,
		"category":  src.Category,
		"inserted":  len(inserted),
		"skipped":   len(batch) - len(inserted),
	})
	if len(inserted) == 0 {
		return nil
	}

	if src.Notify && s.notifier != nil {
		if err := s.notifier.Dispatch(ctx, inserted); err != nil {
			s.log.ErrorObj("notification dispatch failed", "dispatch_error", map[string]any{
				"source_id": src.ID,
				"error":     err.Error(),
			})
		}
	}

	s.publishIngested(ctx, src, inserted)
	return nil
}

// fetchDetails runs the gated concurrent detail fetches. details[i]
// corresponds to fresh[i] and is nil for failed or unparseable postings.
func (s *Service) fetchDetails(ctx context.Context, adapter sources.Adapter, src sources.Source, fresh []domain.Candidate) []*domain.NoticeDetail {
	details := make([]*domain.NoticeDetail, len(fresh))

	var wg sync.WaitGroup
	for i, c := range fresh {
		wg.Add(1)
		go func(i int, c domain.Candidate) {
			defer wg.Done()

			if err := s.gate.Acquire(ctx); err != nil {
				return
			}
			defer s.gate.Release()

			detail, err := adapter.ParseDetail(ctx, src, c.Link)
			if err != nil {
				// Transient upstream failure: the item stays new and the
				// next scheduled pass naturally retries it.
				s.log.WarnObj("detail fetch failed", "detail_error", map[string]any{
					"source_id": src.ID,
					"link":      c.Link,
					"error":     err.Error(),
				})
				return
			}
			if detail == nil {
				s.log.WarnObj("detail page unparseable", "detail_skip", map[string]any{
					"source_id": src.ID,
					"link":      c.Link,
				})
				return
			}
			details[i] = detail
		}(i, c)
	}
	wg.Wait()

	return details
}

// buildPostings turns successful detail fetches into posting records.
// The detail page's own title wins over the listing title when non-empty.
func buildPostings(category string, fresh []domain.Candidate, details []*domain.NoticeDetail) []domain.Posting {
	out := make([]domain.Posting, 0, len(fresh))
	for i, c := range fresh {
		detail := details[i]
		if detail == nil {
			continue
		}

		title := strings.TrimSpace(detail.Title)
		if title == "" {
			title = c.Title
		}

		out = append(out, domain.Posting{
			Title:       title,
			Link:        c.Link,
			Category:    category,
			PublishDate: detail.PublishDate,
			Content:     strings.Join(detail.Paragraphs, "\n\n"),
			Images:      detail.Images,
			Files:       detail.Files,
			UnivViews:   detail.UnivViews,
			Pinned:      c.Pinned,
		})
	}
	return out
}

func (s *Service) publishIngested(ctx context.Context, src sources.Source, inserted []domain.Posting) {
	if s.events == nil {
		return
	}
	for _, p := range inserted {
		if _, err := s.events.Publish(ctx, events.NewEvent(src.ID, src.Name, p)); err != nil {
			s.log.WarnObj("ingest event publish failed", "event_error", map[string]any{
				"source_id":  src.ID,
				"posting_id": p.ID,
				"error":      err.Error(),
			})
		}
	}
}

func dedupeCandidates(in []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, dup := seen[c.Link]; dup {
			continue
		}
		seen[c.Link] = struct{}{}
		out = append(out, c)
	}
	return out
}
