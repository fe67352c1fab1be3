// Package pipeline runs one source image through validation, fetch,
// profile resolution and the concurrent derivative fan-out, under a single
// deadline.
//
// Derivatives that were uploaded before a failure or timeout are not
// removed. A TimeoutError is returned as soon as the deadline fires; tasks
// still running only stop when they next observe their context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
	"github.com/nalbam/lambda-s3-resize/internal/derivative"
	"github.com/nalbam/lambda-s3-resize/internal/keymap"
	"github.com/nalbam/lambda-s3-resize/internal/profile"
)

// Defaults applied to zero Config fields.
const (
	DefaultSafetyMargin = 500 * time.Millisecond
	DefaultBudget       = 60 * time.Second
	DefaultMaxParallel  = 4
	DefaultVisibility   = blobstore.VisibilityPublic
)

// Transformer produces one derivative. *transform.Transformer implements it.
type Transformer interface {
	Transform(ctx context.Context, src derivative.SourceAsset, spec derivative.Spec, format derivative.Format) (derivative.Asset, error)
}

// Observer is notified once per run, after the outcome is decided.
type Observer interface {
	OnComplete(ctx context.Context, outcome Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, outcome Outcome)

func (f ObserverFunc) OnComplete(ctx context.Context, outcome Outcome) { f(ctx, outcome) }

// Config tunes a run.
type Config struct {
	// SafetyMargin is reserved out of the caller's deadline for reporting.
	SafetyMargin time.Duration
	// DefaultBudget applies when the context carries no deadline.
	DefaultBudget time.Duration
	// MaxParallel caps concurrent derivative tasks.
	MaxParallel int
	// Visibility is applied to every uploaded derivative.
	Visibility blobstore.Visibility
}

func (c Config) withDefaults() Config {
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	if c.DefaultBudget <= 0 {
		c.DefaultBudget = DefaultBudget
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.Visibility == "" {
		c.Visibility = DefaultVisibility
	}
	return c
}

// Options wires an Orchestrator.
type Options struct {
	Store       blobstore.Store
	Resolver    *profile.Resolver
	Transformer Transformer
	Mapper      keymap.Mapper
	Observer    Observer
	Config      Config
}

// Result describes a run. On failure Keys lists the derivatives that were
// written before the run gave up.
type Result struct {
	RunID    string
	Bucket   string
	Key      string
	Category derivative.Category
	Keys     []string
	Duration time.Duration
}

// Outcome is what observers receive.
type Outcome struct {
	Result
	SourceBytes    int
	ProfileVersion int
	Err            error
}

// Orchestrator runs the derivative pipeline. It is safe for concurrent use.
type Orchestrator struct {
	store       blobstore.Store
	resolver    *profile.Resolver
	transformer Transformer
	mapper      keymap.Mapper
	observer    Observer
	cfg         Config
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if opts.Transformer == nil {
		return nil, errors.New("pipeline: transformer is required")
	}
	return &Orchestrator{
		store:       opts.Store,
		resolver:    opts.Resolver,
		transformer: opts.Transformer,
		mapper:      opts.Mapper,
		observer:    opts.Observer,
		cfg:         opts.Config.withDefaults(),
	}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Run produces every derivative for bucket/key. It returns the written keys
// in spec order, or the first error encountered. The returned Result is
// never nil.
func (o *Orchestrator) Run(ctx context.Context, bucket, key string) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Bucket: bucket, Key: key}
	src := derivative.Source{Bucket: bucket, Key: key}
	logger := log.With().Str("runId", res.RunID).Str("bucket", bucket).Str("key", key).Logger()

	out := Outcome{ProfileVersion: o.resolver.Version()}
	finish := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		out.Result = *res
		out.Err = err
		o.report(ctx, logger, out)
		return res, err
	}

	// VALIDATE
	if !o.resolver.HasRoot(key) {
		return finish(&derivative.UnsupportedPathError{Source: src, Root: o.resolver.Root()})
	}
	format := derivative.FormatFromKey(key)
	if !format.Supported() {
		return finish(&derivative.UnsupportedFormatError{Source: src, Ext: string(format)})
	}

	deadline := o.deadline(ctx, start)
	if !deadline.After(start) {
		return finish(&derivative.TimeoutError{Source: src})
	}
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	// FETCH
	obj, expired, err := o.fetch(runCtx, bucket, key, timer.C)
	if expired {
		return finish(&derivative.TimeoutError{Source: src})
	}
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return finish(&derivative.TimeoutError{Source: src})
		}
		fe := &derivative.FetchError{Source: src, Cause: err}
		if fe.NotFound() {
			logger.Warn().Msg("Source object no longer exists")
		}
		return finish(fe)
	}
	out.SourceBytes = len(obj.Bytes)
	asset := derivative.SourceAsset{Bucket: bucket, Key: key, ContentType: obj.ContentType, Bytes: obj.Bytes}
	logger.Debug().Int("sourceSize", len(obj.Bytes)).Str("contentType", obj.ContentType).Msg("Source fetched")

	// RESOLVE
	prof, err := o.resolver.Resolve(bucket, key)
	if err != nil {
		return finish(err)
	}
	res.Category = prof.Category

	// FAN_OUT + JOIN
	keys, err := o.fanOut(runCtx, logger, asset, prof.Specs, format, timer.C)
	res.Keys = keys
	return finish(err)
}

// deadline returns the instant the run must finish by.
func (o *Orchestrator) deadline(ctx context.Context, now time.Time) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d.Add(-o.cfg.SafetyMargin)
	}
	return now.Add(o.cfg.DefaultBudget - o.cfg.SafetyMargin)
}

// fetch reads the source, giving up when expired fires first.
func (o *Orchestrator) fetch(ctx context.Context, bucket, key string, expired <-chan time.Time) (blobstore.Object, bool, error) {
	type fetched struct {
		obj blobstore.Object
		err error
	}
	ch := make(chan fetched, 1)
	go func() {
		obj, err := o.store.Fetch(ctx, bucket, key)
		ch <- fetched{obj, err}
	}()
	select {
	case f := <-ch:
		return f.obj, false, f.err
	case <-expired:
		return blobstore.Object{}, true, nil
	}
}

func (o *Orchestrator) fanOut(ctx context.Context, logger zerolog.Logger, src derivative.SourceAsset, specs []derivative.Spec, format derivative.Format, expired <-chan time.Time) ([]string, error) {
	aliases := make([]string, len(specs))
	for i, s := range specs {
		aliases[i] = s.Alias
	}
	col := newCollector(aliases)

	// g.Go blocks once the limit is reached, so tasks are spawned from the
	// waiting goroutine and the deadline select below is never held up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(min(o.cfg.MaxParallel, len(specs)))
		for i, spec := range specs {
			g.Go(func() error {
				destKey, err := o.runTask(ctx, logger, src, spec, format)
				if err != nil {
					if !col.fail(i, err) {
						logger.Warn().Err(err).Str("alias", spec.Alias).Msg("Additional derivative failure")
					}
					return err
				}
				col.succeed(i, destKey)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		_, written, first := col.snapshot()
		return written, first
	case <-expired:
		pending, written, _ := col.snapshot()
		return written, &derivative.TimeoutError{
			Source:    derivative.Source{Bucket: src.Bucket, Key: src.Key},
			Pending:   pending,
			Completed: written,
		}
	}
}

// runTask transforms, maps and uploads one derivative.
func (o *Orchestrator) runTask(ctx context.Context, logger zerolog.Logger, src derivative.SourceAsset, spec derivative.Spec, format derivative.Format) (string, error) {
	start := time.Now()
	source := derivative.Source{Bucket: src.Bucket, Key: src.Key}

	asset, err := o.transformer.Transform(ctx, src, spec, format)
	if err != nil {
		var te *derivative.TransformError
		if !errors.As(err, &te) {
			err = &derivative.TransformError{Source: source, Alias: spec.Alias, Size: spec.Size, Cause: err}
		}
		return "", err
	}

	destKey := o.mapper.DestinationKey(src.Key, spec.Alias)
	contentType := asset.ContentType
	if contentType == "" {
		contentType = format.ContentType()
	}
	err = o.store.Put(ctx, blobstore.PutInput{
		Bucket:      src.Bucket,
		Key:         destKey,
		Bytes:       asset.Bytes,
		ContentType: contentType,
		Visibility:  o.cfg.Visibility,
	})
	if err != nil {
		return "", &derivative.UploadError{Source: source, Alias: spec.Alias, DestKey: destKey, Cause: err}
	}

	logger.Info().
		Str("alias", spec.Alias).
		Str("destKey", destKey).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Int("size", len(asset.Bytes)).
		Dur("duration", time.Since(start)).
		Msg("Derivative uploaded")
	return destKey, nil
}

func (o *Orchestrator) report(ctx context.Context, logger zerolog.Logger, out Outcome) {
	if out.Err != nil {
		logger.Error().
			Err(out.Err).
			Str("category", string(out.Category)).
			Strs("written", out.Keys).
			Dur("duration", out.Duration).
			Msg("Derivative pipeline failed")
	} else {
		logger.Info().
			Str("category", string(out.Category)).
			Strs("keys", out.Keys).
			Int("sourceSize", out.SourceBytes).
			Dur("duration", out.Duration).
			Msg("Derivatives generated")
	}
	if o.observer != nil {
		o.observer.OnComplete(ctx, out)
	}
}

// String renders a short summary for CLI output.
func (r *Result) String() string {
	return fmt.Sprintf("%s/%s (%s): %d derivatives in %s", r.Bucket, r.Key, r.Category, len(r.Keys), r.Duration.Round(time.Millisecond))
}
