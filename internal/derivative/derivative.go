// Package derivative holds the data model shared by every stage of the
// resize pipeline: the source image, the per-category derivative specs,
// the produced derivative assets, and the error taxonomy.
//
// Values in this package are immutable once built. A SourceAsset is shared
// read-only between concurrent transform tasks, so nothing here mutates
// the Bytes slices it carries.
package derivative

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects the geometric operation applied to a source image.
type Mode string

const (
	// ModeFit bounds the image inside the target box without enlarging it.
	ModeFit Mode = "FIT"
	// ModeCrop scales the image to cover the target box, then centre-crops it.
	ModeCrop Mode = "CROP"
	// ModePassthrough re-encodes the oriented source without resizing.
	ModePassthrough Mode = "PASSTHROUGH"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeFit:
		return ModeFit, nil
	case ModeCrop:
		return ModeCrop, nil
	case ModePassthrough:
		return ModePassthrough, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Category is the logical classification of a source image, taken from the
// second segment of its storage key.
type Category string

const (
	CategoryArticle              Category = "ARTICLE"
	CategoryProfile              Category = "PROFILE"
	CategoryMessage              Category = "MESSAGE"
	CategoryBusinessArticleThumb Category = "BUSINESS_ARTICLE_THUMB"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryArticle,
	CategoryProfile,
	CategoryMessage,
	CategoryBusinessArticleThumb,
}

// Segment returns the key path segment that names this category
// (e.g. "business_article_thumb").
func (c Category) Segment() string {
	return strings.ToLower(string(c))
}

// CategoryFromSegment maps a key path segment to its category.
func CategoryFromSegment(segment string) (Category, bool) {
	for _, c := range Categories {
		if c.Segment() == segment {
			return c, true
		}
	}
	return "", false
}

// Size is a target box in pixels. A uniform size has Width == Height.
type Size struct {
	Width  int
	Height int
}

// Square returns a uniform size of n pixels.
func Square(n int) Size {
	return Size{Width: n, Height: n}
}

// Max returns the larger side of the box.
func (s Size) Max() int {
	if s.Width > s.Height {
		return s.Width
	}
	return s.Height
}

// String renders "192" for uniform sizes and "1280x720" for pairs.
func (s Size) String() string {
	if s.Width == s.Height {
		return strconv.Itoa(s.Width)
	}
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

// ParseSize accepts "192" or "1280x720".
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Size{}, nil
	}
	w, h, pair := strings.Cut(s, "x")
	width, err := strconv.Atoi(w)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if !pair {
		return Square(width), nil
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size{Width: width, Height: height}, nil
}

// Spec describes one derivative to produce for a category.
type Spec struct {
	// Alias labels the derivative ("s", "m", "l"). Empty only for a single
	// passthrough spec.
	Alias     string
	Size      Size
	Mode      Mode
	Quality   int
	Watermark bool
}

// SourceAsset is the fetched original image. Bytes must never be modified.
type SourceAsset struct {
	Bucket      string
	Key         string
	ContentType string
	Bytes       []byte
}

// Asset is one produced derivative, ready for upload.
type Asset struct {
	Key         string
	ContentType string
	Bytes       []byte
	Width       int
	Height      int
}
