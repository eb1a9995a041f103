package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Shin-In-Gyu/DBtest/pkg/httpclient"
)

// DefaultExpoURL is the Expo push service endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

const expoDeviceNotRegistered = "DeviceNotRegistered"

// ExpoGateway delivers batches through the Expo push HTTP API.
type ExpoGateway struct {
	url    string
	client *resty.Client
}

// NewExpoGateway builds an Expo gateway. An empty url falls back to the
// public Expo endpoint.
func NewExpoGateway(url string, timeout time.Duration) *ExpoGateway {
	if url == "" {
		url = DefaultExpoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoGateway{
		url:    url,
		client: httpclient.NewRestyHTTPClient(httpclient.Options{Timeout: timeout}),
	}
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Send posts the batch as one request and maps Expo tickets to receipts.
func (g *ExpoGateway) Send(ctx context.Context, batch []Message) ([]Receipt, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(batch).
		Post(g.url)
	if err != nil {
		return nil, fmt.Errorf("expo push request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("expo push status %d", resp.StatusCode())
	}

	var parsed expoResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("expo returned %d tickets for %d messages", len(parsed.Data), len(batch))
	}

	receipts := make([]Receipt, len(batch))
	for i, ticket := range parsed.Data {
		receipts[i] = Receipt{
			Token:      batch[i].To,
			OK:         ticket.Status == "ok",
			DeviceGone: ticket.Details.Error == expoDeviceNotRegistered,
			Err:        ticket.Message,
		}
	}
	return receipts, nil
}
