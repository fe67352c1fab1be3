// Package profile resolves a source key to the ordered list of derivatives
// that must be produced for it.
//
// The category is the first path segment after the source root, e.g.
// "incoming/article/123.jpg" resolves to ARTICLE. The category table is the
// embedded, versioned profiles.toml; it is parsed once at process start and
// never mutated.
package profile

import (
	"strings"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// DefaultSourceRoot is the key prefix uploads land under.
const DefaultSourceRoot = "incoming/"

// Profile is a resolved category and its derivative specs.
type Profile struct {
	Category derivative.Category
	Specs    []derivative.Spec
}

// Resolver maps source keys to profiles.
type Resolver struct {
	root  string
	table Table
}

// NewResolver creates a Resolver for keys under root using table.
// An empty root means DefaultSourceRoot.
func NewResolver(root string, table Table) *Resolver {
	if root == "" {
		root = DefaultSourceRoot
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &Resolver{root: root, table: table}
}

// Root returns the required source key prefix.
func (r *Resolver) Root() string {
	return r.root
}

// Version returns the version of the profile table in use.
func (r *Resolver) Version() int {
	return r.table.Version
}

// HasRoot reports whether key sits under the source root.
func (r *Resolver) HasRoot(key string) bool {
	return strings.HasPrefix(key, r.root)
}

// Resolve returns the profile for a source key. Keys outside the source
// root fail with UnsupportedPathError before category lookup; keys whose
// category segment is missing or unknown fail with UnknownCategoryError.
// The returned spec slice is a copy and may be modified by the caller.
func (r *Resolver) Resolve(bucket, key string) (Profile, error) {
	src := derivative.Source{Bucket: bucket, Key: key}
	if !r.HasRoot(key) {
		return Profile{}, &derivative.UnsupportedPathError{Source: src, Root: r.root}
	}

	segments := strings.Split(strings.TrimPrefix(key, r.root), "/")
	if len(segments) < 2 || segments[len(segments)-1] == "" {
		segment := ""
		if len(segments) > 0 {
			segment = segments[0]
		}
		return Profile{}, &derivative.UnknownCategoryError{Source: src, Segment: segment}
	}

	category, ok := derivative.CategoryFromSegment(segments[0])
	if !ok {
		return Profile{}, &derivative.UnknownCategoryError{Source: src, Segment: segments[0]}
	}
	specs, ok := r.table.Profiles[category]
	if !ok || len(specs) == 0 {
		return Profile{}, &derivative.UnknownCategoryError{Source: src, Segment: segments[0]}
	}

	out := make([]derivative.Spec, len(specs))
	copy(out, specs)
	return Profile{Category: category, Specs: out}, nil
}
