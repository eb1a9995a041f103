package httpclient

import "context"

// Response is the slice of an HTTP response the board parsers need: the
// raw markup and the status code used to reject non-200 listing pages.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client is the outbound HTTP contract shared by the listing and detail
// fetchers. Implementations own pooling and TLS policy (see Options on
// RestyClient); tests substitute canned-markup fakes.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
