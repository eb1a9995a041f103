package push

import "context"

// NoopGateway is the soft-disabled gateway: every message is reported as
// not delivered so no notification history accumulates, while callers'
// flows complete normally.
type NoopGateway struct{}

// NewNoopGateway returns the disabled gateway.
func NewNoopGateway() NoopGateway { return NoopGateway{} }

func (NoopGateway) Send(_ context.Context, batch []Message) ([]Receipt, error) {
	receipts := make([]Receipt, len(batch))
	for i, msg := range batch {
		receipts[i] = Receipt{Token: msg.To, Err: "push gateway disabled"}
	}
	return receipts, nil
}
