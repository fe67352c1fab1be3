package store

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamo struct {
	input *dynamodb.PutItemInput
	err   error
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func TestPutOutcome(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewOutcomeStore(fake, "resize-outcomes")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	o := &Outcome{
		RunID:          "run-1",
		Bucket:         "media",
		Key:            "incoming/article/123.jpg",
		Status:         StatusSuccess,
		Category:       "ARTICLE",
		Keys:           []string{"derived/s/article/123.jpg", "derived/m/article/123.jpg"},
		SourceBytes:    2048,
		ProfileVersion: 1,
		DurationMs:     321,
	}
	if err := s.PutOutcome(context.Background(), o); err != nil {
		t.Fatalf("PutOutcome error: %v", err)
	}

	in := fake.input
	if in == nil || *in.TableName != "resize-outcomes" {
		t.Fatalf("PutItem input = %+v", in)
	}
	tests := []struct {
		attr string
		want string
	}{
		{"PK", "media#incoming/article/123.jpg"},
		{"SK", "RUN#run-1"},
		{"status", StatusSuccess},
		{"createdAt", "2026-03-01T12:00:00Z"},
	}
	for _, tt := range tests {
		got, ok := in.Item[tt.attr].(*types.AttributeValueMemberS)
		if !ok || got.Value != tt.want {
			t.Errorf("%s = %v, want %q", tt.attr, in.Item[tt.attr], tt.want)
		}
	}

	ttl, ok := in.Item["expiresAt"].(*types.AttributeValueMemberN)
	if !ok || ttl.Value != strconv.FormatInt(fixed.Add(OutcomeTTL).Unix(), 10) {
		t.Errorf("expiresAt = %v", in.Item["expiresAt"])
	}
	if _, ok := in.Item["error"]; ok {
		t.Error("empty error should be omitted")
	}

	var back Outcome
	if err := attributevalue.UnmarshalMap(in.Item, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Keys) != 2 || back.SourceBytes != 2048 || back.DurationMs != 321 {
		t.Errorf("round-tripped outcome = %+v", back)
	}
}

func TestPutOutcome_Error(t *testing.T) {
	fake := &fakeDynamo{err: errors.New("throttled")}
	s := NewOutcomeStore(fake, "t")
	err := s.PutOutcome(context.Background(), &Outcome{RunID: "r", Bucket: "b", Key: "k", Status: StatusFailure, Error: "boom"})
	if err == nil || !errors.Is(err, fake.err) {
		t.Fatalf("error = %v, want wrapped throttled", err)
	}
}
