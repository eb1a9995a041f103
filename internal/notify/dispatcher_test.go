package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/internal/storage"
	"github.com/Shin-In-Gyu/DBtest/pkg/push"
)

// fakeStore records commit arguments and serves canned subscribers.
type fakeStore struct {
	subscribers map[string][]domain.Device
	sent        map[string]struct{}
	sentErr     error
	commitErr   error

	committedIDs     []uint64
	committedRecords []domain.NotificationRecord
	committedDead    []string
	commits          int
}

func (f *fakeStore) SubscribersFor(_ []string) (map[string][]domain.Device, error) {
	return f.subscribers, nil
}

func (f *fakeStore) SentPairs(_ []uint64) (map[string]struct{}, error) {
	if f.sentErr != nil {
		return nil, f.sentErr
	}
	if f.sent == nil {
		return map[string]struct{}{}, nil
	}
	return f.sent, nil
}

func (f *fakeStore) CommitDispatch(ids []uint64, records []domain.NotificationRecord, dead []string) error {
	f.commits++
	f.committedIDs = ids
	f.committedRecords = records
	f.committedDead = dead
	return f.commitErr
}

// fakeGateway answers each message with a scripted receipt.
type fakeGateway struct {
	gone    map[string]bool // token -> device gone
	fail    map[string]bool // token -> generic failure
	sendErr error
	batches [][]push.Message
}

func (f *fakeGateway) Send(_ context.Context, msgs []push.Message) ([]push.Receipt, error) {
	f.batches = append(f.batches, msgs)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	receipts := make([]push.Receipt, len(msgs))
	for i, m := range msgs {
		receipts[i] = push.Receipt{Token: m.To, OK: true}
		if f.gone[m.To] {
			receipts[i] = push.Receipt{Token: m.To, DeviceGone: true, Err: "DeviceNotRegistered"}
		} else if f.fail[m.To] {
			receipts[i] = push.Receipt{Token: m.To, Err: "boom"}
		}
	}
	return receipts, nil
}

func TestDispatchCommitsRecordsAndDeadDevices(t *testing.T) {
	store := &fakeStore{
		subscribers: map[string][]domain.Device{
			"c": {
				{ID: 1, Token: "tok-ok"},
				{ID: 2, Token: "tok-gone"},
			},
		},
	}
	gateway := &fakeGateway{gone: map[string]bool{"tok-gone": true}}
	d := NewDispatcher(store, gateway, 0, nil)

	postings := []domain.Posting{{ID: 10, Category: "c", Title: "notice", Link: "u"}}
	if err := d.Dispatch(context.Background(), postings); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if store.commits != 1 {
		t.Fatalf("expected one commit, got %d", store.commits)
	}
	if len(store.committedIDs) != 1 || store.committedIDs[0] != 10 {
		t.Fatalf("unexpected notified ids %v", store.committedIDs)
	}
	if len(store.committedRecords) != 1 || store.committedRecords[0].DeviceID != 1 || store.committedRecords[0].PostingID != 10 {
		t.Fatalf("unexpected records %v", store.committedRecords)
	}
	if len(store.committedDead) != 1 || store.committedDead[0] != "tok-gone" {
		t.Fatalf("unexpected dead tokens %v", store.committedDead)
	}
}

func TestDispatchSkipsAlreadySentPairs(t *testing.T) {
	store := &fakeStore{
		subscribers: map[string][]domain.Device{
			"c": {{ID: 1, Token: "tok-1"}, {ID: 2, Token: "tok-2"}},
		},
		sent: map[string]struct{}{
			storage.PairKey(1, 10): {},
		},
	}
	gateway := &fakeGateway{}
	d := NewDispatcher(store, gateway, 0, nil)

	if err := d.Dispatch(context.Background(), []domain.Posting{{ID: 10, Category: "c", Title: "t"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(gateway.batches) != 1 || len(gateway.batches[0]) != 1 {
		t.Fatalf("expected one message for the unsent device, got %v", gateway.batches)
	}
	if gateway.batches[0][0].To != "tok-2" {
		t.Fatalf("expected message to tok-2, got %s", gateway.batches[0][0].To)
	}
}

func TestDispatchFlipsNotifiedEvenWithoutSubscribers(t *testing.T) {
	store := &fakeStore{subscribers: map[string][]domain.Device{}}
	d := NewDispatcher(store, &fakeGateway{}, 0, nil)

	if err := d.Dispatch(context.Background(), []domain.Posting{{ID: 7, Category: "c", Title: "t"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if store.commits != 1 || len(store.committedIDs) != 1 || store.committedIDs[0] != 7 {
		t.Fatalf("expected notified flip despite no subscribers, got %v", store.committedIDs)
	}
	if len(store.committedRecords) != 0 {
		t.Fatalf("expected no records, got %v", store.committedRecords)
	}
}

func TestDispatchIgnoresAlreadyNotifiedPostings(t *testing.T) {
	store := &fakeStore{subscribers: map[string][]domain.Device{}}
	d := NewDispatcher(store, &fakeGateway{}, 0, nil)

	postings := []domain.Posting{
		{ID: 1, Category: "c", Notified: true},
		{Category: "c"}, // never persisted
	}
	if err := d.Dispatch(context.Background(), postings); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if store.commits != 0 {
		t.Fatalf("expected no commit for already notified postings")
	}
}

func TestDispatchBatchesMessages(t *testing.T) {
	devices := make([]domain.Device, 0, 5)
	for i := 1; i <= 5; i++ {
		devices = append(devices, domain.Device{ID: uint64(i), Token: "tok"})
	}
	store := &fakeStore{subscribers: map[string][]domain.Device{"c": devices}}
	gateway := &fakeGateway{}
	d := NewDispatcher(store, gateway, 2, nil)

	if err := d.Dispatch(context.Background(), []domain.Posting{{ID: 3, Category: "c", Title: "t"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(gateway.batches) != 3 {
		t.Fatalf("expected 3 batches of at most 2, got %d", len(gateway.batches))
	}
	for i, b := range gateway.batches {
		if len(b) > 2 {
			t.Fatalf("batch %d exceeds limit: %d", i, len(b))
		}
	}
}

func TestDispatchSurvivesBatchSendError(t *testing.T) {
	store := &fakeStore{
		subscribers: map[string][]domain.Device{"c": {{ID: 1, Token: "tok"}}},
	}
	gateway := &fakeGateway{sendErr: errors.New("gateway down")}
	d := NewDispatcher(store, gateway, 0, nil)

	if err := d.Dispatch(context.Background(), []domain.Posting{{ID: 5, Category: "c", Title: "t"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if store.commits != 1 {
		t.Fatalf("expected commit even when sends failed")
	}
	if len(store.committedRecords) != 0 {
		t.Fatalf("expected no history rows for failed sends, got %v", store.committedRecords)
	}
}

func TestDispatchPropagatesCommitFailure(t *testing.T) {
	store := &fakeStore{
		subscribers: map[string][]domain.Device{"c": {{ID: 1, Token: "tok"}}},
		commitErr:   errors.New("disk full"),
	}
	d := NewDispatcher(store, &fakeGateway{}, 0, nil)

	err := d.Dispatch(context.Background(), []domain.Posting{{ID: 5, Category: "c", Title: "t"}})
	if err == nil {
		t.Fatalf("expected commit failure to surface")
	}
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	if got := truncate("공지사항입니다", 4); got != "공지사항" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("unexpected change for short string %q", got)
	}
}

func TestDispatchRecordsCarrySentTime(t *testing.T) {
	store := &fakeStore{
		subscribers: map[string][]domain.Device{"c": {{ID: 1, Token: "tok"}}},
	}
	d := NewDispatcher(store, &fakeGateway{}, 0, nil)

	before := time.Now().Add(-time.Second)
	if err := d.Dispatch(context.Background(), []domain.Posting{{ID: 5, Category: "c", Title: "t"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(store.committedRecords) != 1 || store.committedRecords[0].SentAt.Before(before) {
		t.Fatalf("expected recent SentAt, got %v", store.committedRecords)
	}
}
