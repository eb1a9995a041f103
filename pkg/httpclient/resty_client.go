package httpclient

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options tunes the shared HTTP client.
type Options struct {
	Timeout time.Duration
	// InsecureTLS skips certificate verification. Some legacy campus
	// servers still present broken certificate chains.
	InsecureTLS bool
}

// RestyClient adapts resty.Client to the httpclient.Client interface.
// One instance owns one connection pool and is safe for concurrent use.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a new RestyClient with the given options.
func NewRestyClient(opts Options) *RestyClient {
	return &RestyClient{client: newRestyBaseClient(opts)}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(opts Options) *resty.Client {
	return newRestyBaseClient(opts)
}

func newRestyBaseClient(opts Options) *resty.Client {
	c := resty.New()
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	if opts.InsecureTLS {
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // legacy upstream certs, opt-in
	}
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// Close releases idle pooled connections.
func (r *RestyClient) Close() {
	if r == nil || r.client == nil {
		return
	}
	if transport, err := r.client.Transport(); err == nil && transport != nil {
		transport.CloseIdleConnections()
	}
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte    { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int { return r.resp.StatusCode() }
