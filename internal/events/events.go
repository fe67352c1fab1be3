// Package events publishes pipeline completion events to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every event.
const Source = "lambda-s3-resize"

// Detail types.
const (
	DetailGenerated = "DerivativesGenerated"
	DetailFailed    = "DerivativesFailed"
)

// PutEventsAPI is the slice of the EventBridge client Emit needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// DerivativesEvent is the event detail.
type DerivativesEvent struct {
	RunID      string   `json:"runId"`
	Bucket     string   `json:"bucket"`
	Key        string   `json:"key"`
	Category   string   `json:"category,omitempty"`
	Keys       []string `json:"keys"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// DetailType returns DetailFailed when the event carries an error.
func (e DerivativesEvent) DetailType() string {
	if e.Error != "" {
		return DetailFailed
	}
	return DetailGenerated
}

// Emit publishes event on busName. An empty busName targets the default bus.
func Emit(ctx context.Context, client PutEventsAPI, busName string, event DerivativesEvent) error {
	if event.Keys == nil {
		event.Keys = []string{}
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal DerivativesEvent: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(event.DetailType()),
		Detail:     aws.String(string(detail)),
		Resources:  []string{fmt.Sprintf("arn:aws:s3:::%s/%s", event.Bucket, event.Key)},
	}
	if busName != "" {
		entry.EventBusName = aws.String(busName)
	}

	result, err := client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("runId", event.RunID).Str("key", event.Key).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("runId", event.RunID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("runId", event.RunID).Str("detailType", event.DetailType()).Msg("Derivatives event emitted to EventBridge")
	return nil
}
