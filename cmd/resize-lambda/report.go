package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
	"github.com/nalbam/lambda-s3-resize/internal/events"
	"github.com/nalbam/lambda-s3-resize/internal/metrics"
	"github.com/nalbam/lambda-s3-resize/internal/pipeline"
	"github.com/nalbam/lambda-s3-resize/internal/store"
)

// outcomeWriter is satisfied by *store.OutcomeStore.
type outcomeWriter interface {
	PutOutcome(ctx context.Context, o *store.Outcome) error
}

// reporter records every pipeline outcome as EMF metrics, a ledger item,
// and a completion event. Ledger and event failures are logged only; they
// never change the invocation result.
type reporter struct {
	outcomes outcomeWriter
	bus      events.PutEventsAPI
	busName  string
	// metricsOut overrides stdout for EMF documents.
	metricsOut io.Writer
}

func (r *reporter) OnComplete(ctx context.Context, o pipeline.Outcome) {
	r.recordMetrics(o)

	status := store.StatusSuccess
	errMsg := ""
	if o.Err != nil {
		status = store.StatusFailure
		errMsg = o.Err.Error()
	}

	if r.outcomes != nil {
		err := r.outcomes.PutOutcome(ctx, &store.Outcome{
			RunID:          o.RunID,
			Bucket:         o.Bucket,
			Key:            o.Key,
			Status:         status,
			Category:       string(o.Category),
			Keys:           o.Keys,
			Error:          errMsg,
			ErrorType:      errorType(o.Err),
			SourceBytes:    o.SourceBytes,
			ProfileVersion: o.ProfileVersion,
			DurationMs:     o.Duration.Milliseconds(),
		})
		if err != nil {
			log.Warn().Err(err).Str("runId", o.RunID).Msg("Failed to record outcome")
		}
	}

	if r.bus != nil {
		err := events.Emit(ctx, r.bus, r.busName, events.DerivativesEvent{
			RunID:      o.RunID,
			Bucket:     o.Bucket,
			Key:        o.Key,
			Category:   string(o.Category),
			Keys:       o.Keys,
			Error:      errMsg,
			DurationMs: o.Duration.Milliseconds(),
		})
		if err != nil {
			log.Warn().Err(err).Str("runId", o.RunID).Msg("Failed to emit completion event")
		}
	}
}

func (r *reporter) recordMetrics(o pipeline.Outcome) {
	category := string(o.Category)
	if category == "" {
		category = "UNRESOLVED"
	}
	rec := metrics.New(metrics.Namespace)
	if r.metricsOut != nil {
		rec.WithOutput(r.metricsOut)
	}

	failures, timeouts := 0, 0
	if o.Err != nil {
		failures = 1
		var te *derivative.TimeoutError
		if errors.As(o.Err, &te) {
			timeouts = 1
		}
	}
	rec.Dimension("Category", category).
		Count("DerivativesWritten", len(o.Keys)).
		Duration("PipelineMs", o.Duration).
		Metric("SourceBytes", float64(o.SourceBytes), metrics.UnitBytes).
		Count("Failures", failures).
		Count("Timeouts", timeouts).
		Property("runId", o.RunID).
		Property("key", o.Key)
	if o.Err != nil {
		rec.Property("errorType", errorType(o.Err))
	}
	rec.Flush()
}

// errorType names the pipeline error kind, e.g. "UploadError".
func errorType(err error) string {
	if err == nil {
		return ""
	}
	name := fmt.Sprintf("%T", err)
	return name[strings.LastIndex(name, ".")+1:]
}
