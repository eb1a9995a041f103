package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsClient defines the minimal subset of the SNS client used by SNSGateway.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway delivers push messages through AWS SNS mobile-push endpoints.
// Message tokens are endpoint ARNs; a disabled endpoint maps to the
// permanently-invalid receipt class.
type SNSGateway struct {
	client snsClient
}

// NewSNSGateway builds an SNS gateway using the default credential chain.
func NewSNSGateway(ctx context.Context, region string) (*SNSGateway, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSGateway{client: sns.NewFromConfig(awsCfg)}, nil
}

type snsPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Send publishes each message to its endpoint ARN, collecting per-message receipts.
func (g *SNSGateway) Send(ctx context.Context, batch []Message) ([]Receipt, error) {
	receipts := make([]Receipt, len(batch))
	for i, msg := range batch {
		receipts[i] = g.sendOne(ctx, msg)
		if ctx.Err() != nil {
			return receipts, ctx.Err()
		}
	}
	return receipts, nil
}

func (g *SNSGateway) sendOne(ctx context.Context, msg Message) Receipt {
	payload, err := json.Marshal(snsPayload{Title: msg.Title, Body: msg.Body, Data: msg.Data})
	if err != nil {
		return Receipt{Token: msg.To, Err: err.Error()}
	}

	_, err = g.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(msg.To),
		Message:   aws.String(string(payload)),
	})
	if err != nil {
		var disabled *types.EndpointDisabledException
		var notFound *types.NotFoundException
		if errors.As(err, &disabled) || errors.As(err, &notFound) {
			return Receipt{Token: msg.To, DeviceGone: true, Err: err.Error()}
		}
		return Receipt{Token: msg.To, Err: err.Error()}
	}
	return Receipt{Token: msg.To, OK: true}
}
