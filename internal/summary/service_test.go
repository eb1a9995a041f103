package summary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/internal/storage"
	"github.com/Shin-In-Gyu/DBtest/pkg/sources"
)

type fakeStore struct {
	postings map[uint64]*domain.Posting

	savedSummary   string
	savedSummaryID uint64
	updatedContent string
	saveErr        error
}

func (f *fakeStore) GetPosting(id uint64) (*domain.Posting, error) {
	p, ok := f.postings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdateContent(id uint64, content string, images []string) error {
	f.updatedContent = content
	if p, ok := f.postings[id]; ok {
		p.Content = content
		p.Images = images
	}
	return nil
}

func (f *fakeStore) SaveSummary(id uint64, summary string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedSummaryID = id
	f.savedSummary = summary
	return nil
}

// fakeSummarizer echoes a marker plus the content it was given.
type fakeSummarizer struct {
	lastContent string
}

func (f *fakeSummarizer) Summarize(_ context.Context, content string, _ []string) string {
	f.lastContent = content
	return "summary-of:" + content
}

type fakeDetailAdapter struct {
	detail *domain.NoticeDetail
	err    error
}

func (f *fakeDetailAdapter) Family() string { return "fake" }
func (f *fakeDetailAdapter) ListCandidates(context.Context, sources.Source) ([]domain.Candidate, error) {
	return nil, nil
}
func (f *fakeDetailAdapter) ParseDetail(context.Context, sources.Source, string) (*domain.NoticeDetail, error) {
	return f.detail, f.err
}

type fakeAdapters struct {
	adapter sources.Adapter
}

func (f *fakeAdapters) AdapterFor(sources.Source) (sources.Adapter, error) {
	if f.adapter == nil {
		return nil, errors.New("no adapter")
	}
	return f.adapter, nil
}

func testRegistry(t *testing.T, category string) *sources.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - id: s1
    name: Campus
    category: ` + category + `
    family: fake
    list_url: https://x/list
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write sources file: %v", err)
	}
	reg, err := sources.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return reg
}

const longContent = "이 공지는 충분히 긴 본문을 가지고 있어서 재수집 없이 바로 요약을 생성할 수 있는 내용입니다. 일정과 장소가 포함되어 있습니다."

func TestGetOrCreateReturnsCachedSummary(t *testing.T) {
	store := &fakeStore{postings: map[uint64]*domain.Posting{
		1: {ID: 1, Summary: "cached"},
	}}
	svc := NewService(store, &fakeSummarizer{}, nil, nil, nil)

	got, err := svc.GetOrCreate(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got != "cached" {
		t.Fatalf("expected cached summary, got %q", got)
	}
	if store.savedSummary != "" {
		t.Fatalf("cached path must not regenerate")
	}
}

func TestGetOrCreateGeneratesAndPersists(t *testing.T) {
	store := &fakeStore{postings: map[uint64]*domain.Posting{
		1: {ID: 1, Content: longContent},
	}}
	sum := &fakeSummarizer{}
	svc := NewService(store, sum, nil, nil, nil)

	got, err := svc.GetOrCreate(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got != "summary-of:"+longContent {
		t.Fatalf("unexpected summary %q", got)
	}
	if store.savedSummaryID != 1 || store.savedSummary != got {
		t.Fatalf("summary not persisted: %+v", store)
	}
}

func TestGetOrCreateRescrapesThinContent(t *testing.T) {
	store := &fakeStore{postings: map[uint64]*domain.Posting{
		1: {ID: 1, Category: "일반공지", Link: "https://x/view?id=1", Content: "짧음"},
	}}
	sum := &fakeSummarizer{}
	adapter := &fakeDetailAdapter{detail: &domain.NoticeDetail{
		Paragraphs: []string{"재수집된 첫 문단", "재수집된 둘째 문단"},
		Images:     []string{"https://cdn/i.png"},
	}}
	svc := NewService(store, sum, testRegistry(t, "일반공지"), &fakeAdapters{adapter: adapter}, nil)

	got, err := svc.GetOrCreate(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	wantContent := "재수집된 첫 문단\n재수집된 둘째 문단"
	if store.updatedContent != wantContent {
		t.Fatalf("content not refreshed, got %q", store.updatedContent)
	}
	if got != "summary-of:"+wantContent {
		t.Fatalf("summary not built from refreshed content: %q", got)
	}
}

func TestGetOrCreateSummarizesThinContentWhenRescrapeFails(t *testing.T) {
	store := &fakeStore{postings: map[uint64]*domain.Posting{
		1: {ID: 1, Category: "일반공지", Link: "u", Content: "짧음"},
	}}
	sum := &fakeSummarizer{}
	adapter := &fakeDetailAdapter{err: errors.New("upstream down")}
	svc := NewService(store, sum, testRegistry(t, "일반공지"), &fakeAdapters{adapter: adapter}, nil)

	got, err := svc.GetOrCreate(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got != "summary-of:짧음" {
		t.Fatalf("expected summary from original content, got %q", got)
	}
}

func TestGetOrCreateUnknownPosting(t *testing.T) {
	svc := NewService(&fakeStore{postings: map[uint64]*domain.Posting{}}, nil, nil, nil, nil)
	if _, err := svc.GetOrCreate(context.Background(), 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrCreateSurfacesSaveFailure(t *testing.T) {
	store := &fakeStore{
		postings: map[uint64]*domain.Posting{1: {ID: 1, Content: longContent}},
		saveErr:  errors.New("disk full"),
	}
	svc := NewService(store, &fakeSummarizer{}, nil, nil, nil)
	if _, err := svc.GetOrCreate(context.Background(), 1); err == nil {
		t.Fatalf("expected save failure to surface")
	}
}
