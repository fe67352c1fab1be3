package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
	"github.com/nalbam/lambda-s3-resize/internal/events"
	"github.com/nalbam/lambda-s3-resize/internal/pipeline"
	"github.com/nalbam/lambda-s3-resize/internal/s3event"
	"github.com/nalbam/lambda-s3-resize/internal/store"
)

type fakeRunner struct {
	calls []string
	fail  map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, bucket, key string) (*pipeline.Result, error) {
	f.calls = append(f.calls, bucket+"/"+key)
	return &pipeline.Result{Bucket: bucket, Key: key}, f.fail[key]
}

func TestProcessAll(t *testing.T) {
	errA := &derivative.UploadError{Source: derivative.Source{Bucket: "b", Key: "incoming/article/a.jpg"}, Alias: "m", Cause: errors.New("x")}
	r := &fakeRunner{fail: map[string]error{"incoming/article/a.jpg": errA}}
	objs := []s3event.Object{
		{Bucket: "b", Key: "incoming/article/a.jpg"},
		{Bucket: "b", Key: "incoming/article/b.jpg"},
	}

	err := processAll(context.Background(), r, "req-1", objs)
	if len(r.calls) != 2 {
		t.Fatalf("calls = %v, want every record processed", r.calls)
	}
	var ue *derivative.UploadError
	if !errors.As(err, &ue) || ue.Alias != "m" {
		t.Errorf("error = %v, want joined UploadError", err)
	}

	if err := processAll(context.Background(), &fakeRunner{}, "req-2", objs); err != nil {
		t.Errorf("error = %v, want nil", err)
	}
}

type fakeLedger struct{ got []*store.Outcome }

func (f *fakeLedger) PutOutcome(ctx context.Context, o *store.Outcome) error {
	f.got = append(f.got, o)
	return nil
}

type fakeBus struct{ inputs []*eventbridge.PutEventsInput }

func (f *fakeBus) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	return &eventbridge.PutEventsOutput{}, nil
}

func TestReporter_Failure(t *testing.T) {
	ledger := &fakeLedger{}
	bus := &fakeBus{}
	var emf bytes.Buffer
	rep := &reporter{outcomes: ledger, bus: bus, busName: "resize", metricsOut: &emf}

	timeout := &derivative.TimeoutError{Source: derivative.Source{Bucket: "media", Key: "incoming/article/1.jpg"}, Pending: []string{"l"}}
	rep.OnComplete(context.Background(), pipeline.Outcome{
		Result: pipeline.Result{
			RunID:    "run-9",
			Bucket:   "media",
			Key:      "incoming/article/1.jpg",
			Category: derivative.CategoryArticle,
			Keys:     []string{"derived/s/article/1.jpg"},
			Duration: 1500 * time.Millisecond,
		},
		SourceBytes:    4096,
		ProfileVersion: 1,
		Err:            timeout,
	})

	if len(ledger.got) != 1 {
		t.Fatalf("ledger writes = %d", len(ledger.got))
	}
	o := ledger.got[0]
	if o.Status != store.StatusFailure || o.ErrorType != "TimeoutError" || o.DurationMs != 1500 || !strings.Contains(o.Error, "TIMEOUT") {
		t.Errorf("ledger outcome = %+v", o)
	}

	if len(bus.inputs) != 1 {
		t.Fatalf("events = %d", len(bus.inputs))
	}
	entry := bus.inputs[0].Entries[0]
	if aws.ToString(entry.DetailType) != events.DetailFailed || aws.ToString(entry.EventBusName) != "resize" {
		t.Errorf("entry = %+v", entry)
	}

	var doc map[string]any
	if err := json.Unmarshal(emf.Bytes(), &doc); err != nil {
		t.Fatalf("EMF output: %v\n%s", err, emf.String())
	}
	if doc["Timeouts"] != float64(1) || doc["Failures"] != float64(1) || doc["DerivativesWritten"] != float64(1) || doc["Category"] != "ARTICLE" {
		t.Errorf("EMF doc = %v", doc)
	}
}

func TestReporter_SuccessWithoutSinks(t *testing.T) {
	var emf bytes.Buffer
	rep := &reporter{metricsOut: &emf}
	rep.OnComplete(context.Background(), pipeline.Outcome{Result: pipeline.Result{RunID: "r", Keys: []string{"a", "b"}}})

	var doc map[string]any
	if err := json.Unmarshal(emf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["Category"] != "UNRESOLVED" || doc["Failures"] != float64(0) || doc["DerivativesWritten"] != float64(2) {
		t.Errorf("EMF doc = %v", doc)
	}
	if _, ok := doc["errorType"]; ok {
		t.Error("errorType set on success")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&derivative.UnsupportedFormatError{}, "UnsupportedFormatError"},
		{&derivative.FetchError{Cause: errors.New("x")}, "FetchError"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
