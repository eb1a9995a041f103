package sources

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shin-In-Gyu/DBtest/pkg/httpclient"
)

// adapterRegistry implements AdapterRegistry keyed by site family.
type adapterRegistry struct {
	byFamily map[string]Adapter
	mu       sync.RWMutex
}

// NewAdapterRegistry builds a registry for the provided adapter implementations.
func NewAdapterRegistry(adapters ...Adapter) AdapterRegistry {
	reg := &adapterRegistry{byFamily: make(map[string]Adapter)}
	for _, a := range adapters {
		reg.register(a)
	}
	return reg
}

func (r *adapterRegistry) register(a Adapter) {
	if a == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(a.Family()))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.byFamily[key] = a
	r.mu.Unlock()
}

// AdapterFor selects the adapter for the given source based on its family tag.
func (r *adapterRegistry) AdapterFor(src Source) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("adapter registry is nil")
	}

	key := strings.ToLower(strings.TrimSpace(src.Family))
	if key == "" {
		return nil, fmt.Errorf("source %q has no family configured", src.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.byFamily[key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter registered for family %q (source %q)", src.Family, src.ID)
}

// Known site families.
const (
	FamilyBoard = "board"
	FamilyTable = "table"
)

// DefaultHTTPClient returns a tuned http.Client for source adapters.
func DefaultHTTPClient() HTTPClient {
	return httpclient.NewRestyClient(httpclient.Options{Timeout: 15 * time.Second})
}

// DefaultAdapterRegistry wires up the known site-family adapters.
func DefaultAdapterRegistry(client HTTPClient) AdapterRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return NewAdapterRegistry(
		NewBoardAdapter(client),
		NewTableAdapter(client),
	)
}
