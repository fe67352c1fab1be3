// Package transform turns a source image into one derivative: it applies
// the EXIF orientation, resizes or crops per the derivative mode, stamps a
// watermark when the derivative asks for one, and re-encodes the result.
//
// Resampling uses Catmull-Rom from golang.org/x/image/draw; flips, rotations,
// cropping and compositing use disintegration/imaging. Everything is pure
// Go, so Transform is deterministic for identical input.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
	"github.com/nalbam/lambda-s3-resize/internal/watermark"
)

// DefaultWatermarkInset is the distance of the stamp from the top and right edges.
var DefaultWatermarkInset = image.Pt(10, 10)

// StampSource returns decoded watermark images. *watermark.Cache implements it.
type StampSource interface {
	Image(ctx context.Context, reference string) (image.Image, error)
}

// Options configures a Transformer.
type Options struct {
	// Selector picks the stamp for watermark-eligible specs. Nil disables watermarking.
	Selector *watermark.Selector
	// Stamps loads the selected stamp. Nil disables watermarking.
	Stamps StampSource
	// Inset positions the stamp relative to the top-right corner.
	Inset image.Point
}

// Transformer produces derivatives. It is safe for concurrent use.
type Transformer struct {
	selector *watermark.Selector
	stamps   StampSource
	inset    image.Point
}

// New creates a Transformer.
func New(opts Options) *Transformer {
	inset := opts.Inset
	if inset == (image.Point{}) {
		inset = DefaultWatermarkInset
	}
	return &Transformer{selector: opts.Selector, stamps: opts.Stamps, inset: inset}
}

// Transform builds the derivative described by spec from src, encoded as
// format. The returned Asset has no Key; the caller assigns one. src.Bytes
// is only read. Any failure is returned as *derivative.TransformError.
func (t *Transformer) Transform(ctx context.Context, src derivative.SourceAsset, spec derivative.Spec, format derivative.Format) (derivative.Asset, error) {
	start := time.Now()
	fail := func(err error) (derivative.Asset, error) {
		return derivative.Asset{}, &derivative.TransformError{
			Source: derivative.Source{Bucket: src.Bucket, Key: src.Key},
			Alias:  spec.Alias,
			Size:   spec.Size,
			Cause:  err,
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	img, _, err := image.Decode(bytes.NewReader(src.Bytes))
	if err != nil {
		return fail(fmt.Errorf("decode: %w", err))
	}
	srcBounds := img.Bounds()

	orientation := readOrientation(src.Bytes, format)
	img = applyOrientation(img, orientation)

	switch spec.Mode {
	case derivative.ModeFit:
		img = fit(img, spec.Size)
	case derivative.ModeCrop:
		img = crop(img, spec.Size)
	case derivative.ModePassthrough:
	default:
		return fail(fmt.Errorf("unknown mode %q", spec.Mode))
	}

	stamp := ""
	if spec.Watermark {
		img, stamp, err = t.applyWatermark(ctx, img, spec.Size.Max())
		if err != nil {
			return fail(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	data, err := encode(img, format, spec.Quality)
	if err != nil {
		return fail(err)
	}

	out := img.Bounds()
	log.Debug().
		Str("key", src.Key).
		Str("alias", spec.Alias).
		Str("mode", string(spec.Mode)).
		Int("orientation", orientation).
		Int("srcWidth", srcBounds.Dx()).
		Int("srcHeight", srcBounds.Dy()).
		Int("width", out.Dx()).
		Int("height", out.Dy()).
		Str("watermark", stamp).
		Int("outputSize", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Derivative transformed")

	return derivative.Asset{
		ContentType: format.ContentType(),
		Bytes:       data,
		Width:       out.Dx(),
		Height:      out.Dy(),
	}, nil
}

// applyWatermark composites the stamp selected for sizePx onto the top-right
// corner of img, blending by the stamp's own alpha channel.
func (t *Transformer) applyWatermark(ctx context.Context, img image.Image, sizePx int) (image.Image, string, error) {
	if t.stamps == nil {
		return img, "", nil
	}
	asset, ok := t.selector.Select(sizePx)
	if !ok {
		return img, "", nil
	}
	stamp, err := t.stamps.Image(ctx, asset.Reference)
	if err != nil {
		return nil, "", fmt.Errorf("watermark: %w", err)
	}

	b := img.Bounds()
	pos := image.Pt(b.Max.X-stamp.Bounds().Dx()-t.inset.X, b.Min.Y+t.inset.Y)
	return imaging.Overlay(img, stamp, pos, 1.0), asset.Reference, nil
}
