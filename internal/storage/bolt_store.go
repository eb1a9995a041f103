package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

const (
	postingBucket     = "postings"      // category \x00 link -> posting JSON
	postingIdxBucket  = "postings_idx"  // id (8B BE)        -> posting key
	deviceBucket      = "devices"       // id (8B BE)        -> device JSON
	deviceTokenBucket = "device_tokens" // token             -> id (8B BE)
	subscriptionBkt   = "subscriptions" // category \x00 id  -> nil
	historyBucket     = "notify_history" // postingID deviceID -> sentAt (8B BE)
)

var allBuckets = []string{
	postingBucket, postingIdxBucket, deviceBucket,
	deviceTokenBucket, subscriptionBkt, historyBucket,
}

// boltStore implements Store backed by BoltDB. Every multi-record operation
// runs inside one bolt update transaction, which is what makes duplicate
// inserts benign and the notified-flag flip atomic with its history rows.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func postingKey(category, link string) []byte {
	return []byte(category + "\x00" + link)
}

func categoryPrefix(category string) []byte {
	return []byte(category + "\x00")
}

func u64be(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func historyKey(postingID, deviceID uint64) []byte {
	return append(u64be(postingID), u64be(deviceID)...)
}

func subscriptionKey(category string, deviceID uint64) []byte {
	return append(categoryPrefix(category), u64be(deviceID)...)
}

// ExistingLinks reports which of the given links already exist under category.
func (b *boltStore) ExistingLinks(category string, links []string) (map[string]bool, error) {
	out := make(map[string]bool, len(links))
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postingBucket))
		for _, link := range links {
			if bucket.Get(postingKey(category, link)) != nil {
				out[link] = true
			}
		}
		return nil
	})
	return out, err
}

// InsertPostings persists the batch in one transaction, assigning IDs.
// A (category, link) pair that already exists is skipped as a benign
// duplicate; only actually inserted postings are returned.
func (b *boltStore) InsertPostings(postings []domain.Posting) ([]domain.Posting, error) {
	var inserted []domain.Posting
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postingBucket))
		idx := tx.Bucket([]byte(postingIdxBucket))
		now := time.Now().UTC()

		for _, p := range postings {
			key := postingKey(p.Category, p.Link)
			if bucket.Get(key) != nil {
				continue
			}

			id, err := idx.NextSequence()
			if err != nil {
				return fmt.Errorf("next posting id: %w", err)
			}
			p.ID = id
			if p.CrawledAt.IsZero() {
				p.CrawledAt = now
			}
			if p.Pinned && p.PinnedAt == nil {
				t := now
				p.PinnedAt = &t
			}

			raw, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal posting: %w", err)
			}
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
			if err := idx.Put(u64be(id), key); err != nil {
				return err
			}
			inserted = append(inserted, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ReconcilePins applies the three pin rules for one category in one
// transaction: observed listing values win, pinned postings absent from the
// listing are force-unpinned, and postings pinned since before staleBefore
// are force-unpinned regardless.
func (b *boltStore) ReconcilePins(category string, observed map[string]bool, staleBefore time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postingBucket))
		cursor := bucket.Cursor()
		prefix := categoryPrefix(category)
		now := time.Now().UTC()

		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var p domain.Posting
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal posting %s: %w", k, err)
			}

			want := p.Pinned
			if seen, ok := observed[p.Link]; ok {
				want = seen
			} else if p.Pinned {
				// Absent from the highlighted slot means the source removed it.
				want = false
			}
			if p.Pinned && p.PinnedAt != nil && p.PinnedAt.Before(staleBefore) {
				want = false
			}

			if want == p.Pinned {
				continue
			}
			p.Pinned = want
			if want {
				t := now
				p.PinnedAt = &t
			} else {
				p.PinnedAt = nil
			}

			raw, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal posting: %w", err)
			}
			if err := bucket.Put(k, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// SubscribersFor resolves the devices subscribed to each category.
func (b *boltStore) SubscribersFor(categories []string) (map[string][]domain.Device, error) {
	out := make(map[string][]domain.Device, len(categories))
	err := b.db.View(func(tx *bolt.Tx) error {
		subs := tx.Bucket([]byte(subscriptionBkt))
		devices := tx.Bucket([]byte(deviceBucket))

		for _, category := range categories {
			cursor := subs.Cursor()
			prefix := categoryPrefix(category)
			for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
				if len(k) < len(prefix)+8 {
					continue
				}
				raw := devices.Get(k[len(prefix):])
				if raw == nil {
					continue
				}
				var d domain.Device
				if err := json.Unmarshal(raw, &d); err != nil {
					return fmt.Errorf("unmarshal device: %w", err)
				}
				out[category] = append(out[category], d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SentPairs loads the (device, posting) pairs already recorded for the given postings.
func (b *boltStore) SentPairs(postingIDs []uint64) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := b.db.View(func(tx *bolt.Tx) error {
		history := tx.Bucket([]byte(historyBucket))
		for _, postingID := range postingIDs {
			cursor := history.Cursor()
			prefix := u64be(postingID)
			for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
				if len(k) != 16 {
					continue
				}
				deviceID := binary.BigEndian.Uint64(k[8:])
				out[PairKey(deviceID, postingID)] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CommitDispatch commits one dispatch as a single unit of work: flips
// notified on every considered posting, inserts the notification history
// rows (existing pairs are left untouched), and deletes dead devices with
// their subscriptions.
func (b *boltStore) CommitDispatch(notifiedIDs []uint64, records []domain.NotificationRecord, deadTokens []string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		postings := tx.Bucket([]byte(postingBucket))
		idx := tx.Bucket([]byte(postingIdxBucket))
		history := tx.Bucket([]byte(historyBucket))

		for _, id := range notifiedIDs {
			key := idx.Get(u64be(id))
			if key == nil {
				continue
			}
			raw := postings.Get(key)
			if raw == nil {
				continue
			}
			var p domain.Posting
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("unmarshal posting %d: %w", id, err)
			}
			if p.Notified {
				continue
			}
			p.Notified = true
			updated, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal posting %d: %w", id, err)
			}
			if err := postings.Put(key, updated); err != nil {
				return err
			}
		}

		for _, rec := range records {
			key := historyKey(rec.PostingID, rec.DeviceID)
			if history.Get(key) != nil {
				continue
			}
			sentAt := rec.SentAt
			if sentAt.IsZero() {
				sentAt = time.Now().UTC()
			}
			if err := history.Put(key, u64be(uint64(sentAt.Unix()))); err != nil {
				return err
			}
		}

		for _, token := range deadTokens {
			if err := deleteDeviceByToken(tx, token); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteDeviceByToken(tx *bolt.Tx, token string) error {
	tokens := tx.Bucket([]byte(deviceTokenBucket))
	devices := tx.Bucket([]byte(deviceBucket))
	subs := tx.Bucket([]byte(subscriptionBkt))

	idRaw := tokens.Get([]byte(token))
	if idRaw == nil {
		return nil
	}

	if err := devices.Delete(idRaw); err != nil {
		return err
	}
	if err := tokens.Delete([]byte(token)); err != nil {
		return err
	}

	// Subscription keys end with the 8-byte device id.
	cursor := subs.Cursor()
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		if len(k) >= 8 && bytes.Equal(k[len(k)-8:], idRaw) {
			if err := cursor.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetPosting loads one posting by id.
func (b *boltStore) GetPosting(id uint64) (*domain.Posting, error) {
	var out *domain.Posting
	err := b.db.View(func(tx *bolt.Tx) error {
		p, err := getPostingTx(tx, id)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getPostingTx(tx *bolt.Tx, id uint64) (*domain.Posting, error) {
	key := tx.Bucket([]byte(postingIdxBucket)).Get(u64be(id))
	if key == nil {
		return nil, ErrNotFound
	}
	raw := tx.Bucket([]byte(postingBucket)).Get(key)
	if raw == nil {
		return nil, ErrNotFound
	}
	var p domain.Posting
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal posting %d: %w", id, err)
	}
	return &p, nil
}

func (b *boltStore) updatePosting(id uint64, mutate func(*domain.Posting)) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		p, err := getPostingTx(tx, id)
		if err != nil {
			return err
		}
		mutate(p)
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal posting %d: %w", id, err)
		}
		return tx.Bucket([]byte(postingBucket)).Put(postingKey(p.Category, p.Link), raw)
	})
}

// UpdateContent replaces a posting's body text and images (re-scrape path).
func (b *boltStore) UpdateContent(id uint64, content string, images []string) error {
	return b.updatePosting(id, func(p *domain.Posting) {
		p.Content = content
		p.Images = images
	})
}

// SaveSummary caches a lazily computed summary on the posting row.
func (b *boltStore) SaveSummary(id uint64, summary string) error {
	return b.updatePosting(id, func(p *domain.Posting) {
		p.Summary = summary
	})
}

// IncrementAppViews bumps the in-app view counter.
func (b *boltStore) IncrementAppViews(id uint64) error {
	return b.updatePosting(id, func(p *domain.Posting) {
		p.AppViews++
	})
}

// PostingsByCategory returns a page of postings for the category, newest first.
func (b *boltStore) PostingsByCategory(category string, offset, limit int) ([]domain.Posting, error) {
	var all []domain.Posting
	err := b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(postingBucket)).Cursor()
		prefix := categoryPrefix(category)
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var p domain.Posting
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal posting %s: %w", k, err)
			}
			all = append(all, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Publish date descending, undated postings last, newest id first on ties.
	sort.SliceStable(all, func(i, j int) bool {
		di, dj := all[i].PublishDate, all[j].PublishDate
		switch {
		case di == nil && dj == nil:
			return all[i].ID > all[j].ID
		case di == nil:
			return false
		case dj == nil:
			return true
		case di.Equal(*dj):
			return all[i].ID > all[j].ID
		default:
			return di.After(*dj)
		}
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// RegisterDevice stores a device by its push token, returning the existing
// record when the token is already registered.
func (b *boltStore) RegisterDevice(token string) (domain.Device, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Device{}, fmt.Errorf("device token is empty")
	}

	var out domain.Device
	err := b.db.Update(func(tx *bolt.Tx) error {
		tokens := tx.Bucket([]byte(deviceTokenBucket))
		devices := tx.Bucket([]byte(deviceBucket))

		if idRaw := tokens.Get([]byte(token)); idRaw != nil {
			raw := devices.Get(idRaw)
			if raw == nil {
				return fmt.Errorf("device index out of sync for token")
			}
			return json.Unmarshal(raw, &out)
		}

		id, err := devices.NextSequence()
		if err != nil {
			return fmt.Errorf("next device id: %w", err)
		}
		out = domain.Device{ID: id, Token: token, CreatedAt: time.Now().UTC()}
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal device: %w", err)
		}
		if err := devices.Put(u64be(id), raw); err != nil {
			return err
		}
		return tokens.Put([]byte(token), u64be(id))
	})
	if err != nil {
		return domain.Device{}, err
	}
	return out, nil
}

// Subscribe adds the device ↔ category edge (idempotent).
func (b *boltStore) Subscribe(deviceID uint64, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("category is empty")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(deviceBucket)).Get(u64be(deviceID)) == nil {
			return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
		}
		return tx.Bucket([]byte(subscriptionBkt)).Put(subscriptionKey(category, deviceID), nil)
	})
}
