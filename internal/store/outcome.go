// Package store persists per-run pipeline outcomes to DynamoDB.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// OutcomeTTL is how long a run record is kept before DynamoDB expires it.
const OutcomeTTL = 30 * 24 * time.Hour

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// PutItemAPI is the slice of the DynamoDB client the ledger needs.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Outcome is one pipeline run. Items are keyed PK = {bucket}#{key},
// SK = RUN#{runId}, so every run of a source sorts under one partition.
type Outcome struct {
	RunID          string   `dynamodbav:"runId"`
	Bucket         string   `dynamodbav:"bucket"`
	Key            string   `dynamodbav:"key"`
	Status         string   `dynamodbav:"status"`
	Category       string   `dynamodbav:"category,omitempty"`
	Keys           []string `dynamodbav:"keys,omitempty"`
	Error          string   `dynamodbav:"error,omitempty"`
	ErrorType      string   `dynamodbav:"errorType,omitempty"`
	SourceBytes    int      `dynamodbav:"sourceBytes"`
	ProfileVersion int      `dynamodbav:"profileVersion"`
	DurationMs     int64    `dynamodbav:"durationMs"`
	CreatedAt      string   `dynamodbav:"createdAt"`
}

// OutcomeStore writes run outcomes to a single table.
type OutcomeStore struct {
	client    PutItemAPI
	tableName string
	now       func() time.Time
}

// NewOutcomeStore creates an OutcomeStore for the given table.
func NewOutcomeStore(client PutItemAPI, tableName string) *OutcomeStore {
	return &OutcomeStore{client: client, tableName: tableName, now: time.Now}
}

func outcomePK(bucket, key string) string {
	return bucket + "#" + key
}

func outcomeSK(runID string) string {
	return "RUN#" + runID
}

// PutOutcome writes o. CreatedAt is filled in when empty.
func (s *OutcomeStore) PutOutcome(ctx context.Context, o *Outcome) error {
	now := s.now()
	if o.CreatedAt == "" {
		o.CreatedAt = now.UTC().Format(time.RFC3339)
	}
	pk := outcomePK(o.Bucket, o.Key)
	sk := outcomeSK(o.RunID)

	start := time.Now()
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(OutcomeTTL).Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	duration := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("pk", pk).Str("sk", sk).Dur("duration", duration).Msg("PutOutcome: DynamoDB PutItem failed")
		return fmt.Errorf("PutItem outcome PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("pk", pk).Str("sk", sk).Str("status", o.Status).Dur("duration", duration).Msg("PutOutcome: outcome persisted")
	return nil
}
