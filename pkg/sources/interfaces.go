package sources

import (
	"context"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
	"github.com/Shin-In-Gyu/DBtest/pkg/httpclient"
)

// Adapter turns one site family's raw markup into normalized data. Concrete
// implementations live in family-specific files (e.g. board.go, table.go).
//
// ListCandidates fails soft: a page that is found but holds no postings
// yields an empty slice, not an error. ParseDetail returns (nil, nil) on
// malformed detail markup so one bad posting never aborts a batch; it only
// errors on transport failures.
type Adapter interface {
	Family() string
	ListCandidates(ctx context.Context, src Source) ([]domain.Candidate, error)
	ParseDetail(ctx context.Context, src Source, url string) (*domain.NoticeDetail, error)
}

// AdapterRegistry resolves the adapter implementation for a given source config.
type AdapterRegistry interface {
	AdapterFor(src Source) (Adapter, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client
