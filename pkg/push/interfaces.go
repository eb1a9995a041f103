package push

import "context"

// Message is one push notification headed for a single destination token.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Badge int               `json:"badge,omitempty"`
}

// Receipt is the per-message delivery status. Receipts align index-wise
// with the batch that produced them.
type Receipt struct {
	Token string
	OK    bool
	// DeviceGone marks a destination the gateway reports as permanently
	// invalid (app uninstalled, token revoked). Callers should drop the
	// device record.
	DeviceGone bool
	Err        string
}

// Gateway delivers one bounded batch of messages and reports per-message status.
type Gateway interface {
	Send(ctx context.Context, batch []Message) ([]Receipt, error)
}
