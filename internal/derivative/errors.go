package derivative

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by blob stores when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Source identifies the source object an error belongs to. Every terminal
// pipeline error embeds it so failures can be correlated offline by file name.
type Source struct {
	Bucket string
	Key    string
}

// Ref returns the source reference; it lets callers recover the bucket and
// key from any pipeline error via SourceOf.
func (s Source) Ref() Source { return s }

// fail renders the "[FAIL]:<bucket>/<key>:<reason>" prefix that operators
// search for in the function logs.
func (s Source) fail(reason string) string {
	return fmt.Sprintf("[FAIL]:%s/%s:%s", s.Bucket, s.Key, reason)
}

// SourceOf extracts the source reference from a pipeline error chain.
func SourceOf(err error) (Source, bool) {
	var r interface{ Ref() Source }
	if errors.As(err, &r) {
		return r.Ref(), true
	}
	return Source{}, false
}

// UnsupportedPathError reports a source key outside the required root.
type UnsupportedPathError struct {
	Source
	Root string
}

func (e *UnsupportedPathError) Error() string {
	return e.fail(fmt.Sprintf("Unsupported image path (want prefix %q)", e.Root))
}

// UnsupportedFormatError reports a source extension outside the allow-list.
type UnsupportedFormatError struct {
	Source
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return e.fail(fmt.Sprintf("Unsupported image type %q", e.Ext))
}

// UnknownCategoryError reports a key whose category segment has no profile.
type UnknownCategoryError struct {
	Source
	Segment string
}

func (e *UnknownCategoryError) Error() string {
	return e.fail(fmt.Sprintf("thumbnail type is undefined (segment %q)", e.Segment))
}

// FetchError wraps a failure to read the source object.
type FetchError struct {
	Source
	Cause error
}

func (e *FetchError) Error() string {
	return e.fail("fetch: " + e.Cause.Error())
}

func (e *FetchError) Unwrap() error { return e.Cause }

// NotFound reports whether the source object was missing.
func (e *FetchError) NotFound() bool {
	return errors.Is(e.Cause, ErrNotFound)
}

// TransformError wraps a decode, resize, watermark, or encode failure for one alias.
type TransformError struct {
	Source
	Alias string
	Size  Size
	Cause error
}

func (e *TransformError) Error() string {
	return e.fail(fmt.Sprintf("resize task %s to %s: %v", aliasLabel(e.Alias), e.Size, e.Cause))
}

func (e *TransformError) Unwrap() error { return e.Cause }

// UploadError wraps a failure to store one derivative.
type UploadError struct {
	Source
	Alias   string
	DestKey string
	Cause   error
}

func (e *UploadError) Error() string {
	return e.fail(fmt.Sprintf("upload %s to %s: %v", aliasLabel(e.Alias), e.DestKey, e.Cause))
}

func (e *UploadError) Unwrap() error { return e.Cause }

// TimeoutError reports that the deadline fired before every derivative task
// finished. Pending tasks keep running in the background until they observe
// their context; derivatives in Completed were already written and remain.
type TimeoutError struct {
	Source
	Pending   []string
	Completed []string
}

func (e *TimeoutError) Error() string {
	msg := "TIMEOUT"
	if len(e.Pending) > 0 {
		msg += fmt.Sprintf(" (pending %s; in-flight tasks cancelled cooperatively", strings.Join(labels(e.Pending), ","))
		if len(e.Completed) > 0 {
			msg += fmt.Sprintf("; already written %s", strings.Join(e.Completed, ","))
		}
		msg += ")"
	}
	return e.fail(msg)
}

func aliasLabel(alias string) string {
	if alias == "" {
		return "passthrough"
	}
	return alias
}

func labels(aliases []string) []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = aliasLabel(a)
	}
	return out
}
