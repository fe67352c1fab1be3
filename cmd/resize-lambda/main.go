// Package main is the Lambda entry point for derivative generation.
//
// It is invoked by S3 ObjectCreated notifications on the source prefix.
// Every record is run through the resize pipeline; the derivatives are
// written back to the same bucket under the destination prefix.
package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
	"github.com/nalbam/lambda-s3-resize/internal/keymap"
	"github.com/nalbam/lambda-s3-resize/internal/lambdaboot"
	"github.com/nalbam/lambda-s3-resize/internal/logging"
	"github.com/nalbam/lambda-s3-resize/internal/pipeline"
	"github.com/nalbam/lambda-s3-resize/internal/profile"
	"github.com/nalbam/lambda-s3-resize/internal/s3event"
	"github.com/nalbam/lambda-s3-resize/internal/transform"
	"github.com/nalbam/lambda-s3-resize/internal/watermark"
)

// Set at build time with -ldflags "-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash string
	buildTime  string
)

var orchestrator *pipeline.Orchestrator

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig()

	table, err := lambdaboot.LoadProfileTable(context.Background(), clients.SSM, cfg.ProfilesParam)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load profile table")
	}

	blobs := blobstore.NewS3Store(clients.S3)

	var topts transform.Options
	if cfg.WatermarkBucket != "" {
		topts.Selector = watermark.NewSelector(watermark.DefaultTiers)
		topts.Stamps = watermark.NewCache(watermark.BlobAssets{Store: blobs, Bucket: cfg.WatermarkBucket}, watermark.DefaultCacheEntries)
	} else {
		log.Warn().Str("envVar", "WATERMARK_BUCKET").Msg("Watermark bucket not set, watermarking disabled")
	}

	rep := &reporter{busName: cfg.EventBus}
	if outcomes := lambdaboot.InitOutcomeStore(clients.Config, cfg.OutcomeTable); outcomes != nil {
		rep.outcomes = outcomes
	}
	if bus := lambdaboot.InitEventBridge(clients.Config, cfg.EventBus); bus != nil {
		rep.bus = bus
	}

	orchestrator, err = pipeline.New(pipeline.Options{
		Store:       blobs,
		Resolver:    profile.NewResolver(cfg.SourceRoot, table),
		Transformer: transform.New(topts),
		Mapper:      keymap.New(cfg.SourceRoot, cfg.DestRoot),
		Observer:    rep,
		Config:      cfg.Pipeline(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	pc := orchestrator.Config()
	lambdaboot.StartupLog("resize-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("watermarkBucket", cfg.WatermarkBucket).
		DynamoTable("outcomes", cfg.OutcomeTable).
		EventBus("completion", cfg.EventBus).
		SSMParam("profiles", cfg.ProfilesParam).
		Feature("watermark", topts.Stamps != nil).
		Feature("outcomeLedger", rep.outcomes != nil).
		Feature("events", rep.bus != nil).
		Config("sourceRoot", cfg.SourceRoot).
		Config("destRoot", cfg.DestRoot).
		Config("profileVersion", strconv.Itoa(table.Version)).
		Config("safetyMargin", pc.SafetyMargin.String()).
		Config("defaultBudget", pc.DefaultBudget.String()).
		Config("maxParallel", strconv.Itoa(pc.MaxParallel)).
		Config("visibility", string(pc.Visibility)).
		Log()
}

func handler(ctx context.Context, event events.S3Event) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "resize-lambda").Msg("Cold start, first invocation")
	}
	requestID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	objects, err := s3event.Decode(event)
	if err != nil {
		log.Error().Err(err).Str("requestId", requestID).Int("records", len(event.Records)).Msg("Failed to decode S3 event")
		return err
	}
	return processAll(ctx, orchestrator, requestID, objects)
}

// runner is the orchestrator surface the handler uses.
type runner interface {
	Run(ctx context.Context, bucket, key string) (*pipeline.Result, error)
}

// processAll runs every object in order and joins the failures.
func processAll(ctx context.Context, r runner, requestID string, objects []s3event.Object) error {
	var errs []error
	for _, obj := range objects {
		log.Info().
			Str("requestId", requestID).
			Str("bucket", obj.Bucket).
			Str("key", obj.Key).
			Int64("size", obj.Size).
			Str("eventName", obj.EventName).
			Msg("Processing uploaded image")
		if _, err := r.Run(ctx, obj.Bucket, obj.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func main() {
	lambda.Start(handler)
}
