package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/internal/logger"
	"github.com/Shin-In-Gyu/DBtest/internal/storage"
	"github.com/Shin-In-Gyu/DBtest/pkg/push"
)

// SubscriptionStore is the slice of the store the dispatcher needs.
type SubscriptionStore interface {
	SubscribersFor(categories []string) (map[string][]domain.Device, error)
	SentPairs(postingIDs []uint64) (map[string]struct{}, error)
	CommitDispatch(notifiedIDs []uint64, records []domain.NotificationRecord, deadTokens []string) error
}

const (
	defaultBatchSize = 500
	defaultBodyLimit = 100
)

// Dispatcher fans newly persisted postings out to category subscribers.
// Delivery is at-least-once from the store's point of view but at-most-once
// per (device, posting): the durable history rows suppress re-sends when a
// failed commit forces the next pass to retry.
type Dispatcher struct {
	store     SubscriptionStore
	gateway   push.Gateway
	batchSize int
	bodyLimit int
	log       logger.Logger
}

// NewDispatcher builds a dispatcher. batchSize <= 0 falls back to 500.
func NewDispatcher(store SubscriptionStore, gateway push.Gateway, batchSize int, log logger.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if gateway == nil {
		gateway = push.NewNoopGateway()
	}
	return &Dispatcher{
		store:     store,
		gateway:   gateway,
		batchSize: batchSize,
		bodyLimit: defaultBodyLimit,
		log:       logger.Ensure(log),
	}
}

// Dispatch notifies subscribers about the given just-persisted postings.
func (d *Dispatcher) Dispatch(ctx context.Context, postings []domain.Posting) error {
	var unnotified []domain.Posting
	for _, p := range postings {
		if !p.Notified && p.ID != 0 {
			unnotified = append(unnotified, p)
		}
	}
	if len(unnotified) == 0 {
		d.log.InfoObj("dispatch skipped", "reason", "all postings already notified")
		return nil
	}

	categories := distinctCategories(unnotified)
	subscribers, err := d.store.SubscribersFor(categories)
	if err != nil {
		return fmt.Errorf("resolve subscribers: %w", err)
	}

	consideredIDs := make([]uint64, 0, len(unnotified))
	for _, p := range unnotified {
		consideredIDs = append(consideredIDs, p.ID)
	}

	// History lookup failures degrade to an empty set; the commit-time
	// uniqueness check still prevents duplicate rows.
	staged, err := d.store.SentPairs(consideredIDs)
	if err != nil {
		d.log.WarnObj("notification history lookup failed", "history_error", err.Error())
		staged = make(map[string]struct{})
	}

	messages, records := d.buildMessages(unnotified, subscribers, staged)

	sent, failed := 0, 0
	var successRecords []domain.NotificationRecord
	deadTokens := make(map[string]struct{})

	for start := 0; start < len(messages); start += d.batchSize {
		end := start + d.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]
		batchRecords := records[start:end]

		receipts, err := d.gateway.Send(ctx, batch)
		if err != nil {
			failed += len(batch)
			d.log.ErrorObj("push batch send failed", "batch_error", map[string]any{
				"batch_size": len(batch),
				"error":      err.Error(),
			})
			continue
		}

		for i, receipt := range receipts {
			if receipt.OK {
				sent++
				successRecords = append(successRecords, batchRecords[i])
				continue
			}
			failed++
			if receipt.DeviceGone {
				deadTokens[receipt.Token] = struct{}{}
			}
		}
	}

	dead := make([]string, 0, len(deadTokens))
	for token := range deadTokens {
		dead = append(dead, token)
	}

	// One unit of work: notified flips, history inserts, device deletions.
	// If this fails, postings stay unnotified and the next pass retries;
	// committed history keeps that retry from re-sending.
	if err := d.store.CommitDispatch(consideredIDs, successRecords, dead); err != nil {
		return fmt.Errorf("commit dispatch: %w", err)
	}

	d.log.InfoObj("dispatch completed", "dispatch_meta", map[string]any{
		"postings":      len(unnotified),
		"messages":      len(messages),
		"sent":          sent,
		"failed":        failed,
		"dead_devices":  len(dead),
		"history_added": len(successRecords),
	})
	return nil
}

// buildMessages produces one message per eligible (posting, subscriber)
// pair. staged doubles as the intra-batch duplicate guard.
func (d *Dispatcher) buildMessages(postings []domain.Posting, subscribers map[string][]domain.Device, staged map[string]struct{}) ([]push.Message, []domain.NotificationRecord) {
	var messages []push.Message
	var records []domain.NotificationRecord
	now := time.Now().UTC()

	for _, p := range postings {
		subs := subscribers[p.Category]
		if len(subs) == 0 {
			d.log.InfoObj("no subscribers for category", "category", p.Category)
			continue
		}

		for _, device := range subs {
			key := storage.PairKey(device.ID, p.ID)
			if _, dup := staged[key]; dup {
				continue
			}
			staged[key] = struct{}{}

			messages = append(messages, push.Message{
				To:    device.Token,
				Title: fmt.Sprintf("🔔 [%s] 새 공지", p.Category),
				Body:  truncate(p.Title, d.bodyLimit),
				Data: map[string]string{
					"id":       fmt.Sprintf("%d", p.ID),
					"url":      p.Link,
					"category": p.Category,
				},
				Sound: "default",
				Badge: 1,
			})
			records = append(records, domain.NotificationRecord{
				DeviceID:  device.ID,
				PostingID: p.ID,
				SentAt:    now,
			})
		}
	}
	return messages, records
}

func distinctCategories(postings []domain.Posting) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range postings {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
