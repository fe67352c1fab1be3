// Package s3event turns S3 notifications into the objects to process.
package s3event

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// ErrNoRecords is returned for a notification without records.
var ErrNoRecords = errors.New("s3 event has no records")

// Object is one uploaded source.
type Object struct {
	Bucket    string
	Key       string
	Size      int64
	EventName string
}

// Decode returns the objects referenced by event, in record order. Keys
// arrive form-encoded ("+" for space, %XX escapes) and are unescaped here.
func Decode(event events.S3Event) ([]Object, error) {
	if len(event.Records) == 0 {
		return nil, ErrNoRecords
	}
	out := make([]Object, 0, len(event.Records))
	for i, rec := range event.Records {
		bucket := rec.S3.Bucket.Name
		if bucket == "" {
			return nil, fmt.Errorf("record %d: missing bucket name", i)
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("record %d: unescape key %q: %w", i, rec.S3.Object.Key, err)
		}
		if key == "" {
			return nil, fmt.Errorf("record %d: missing object key", i)
		}
		out = append(out, Object{
			Bucket:    bucket,
			Key:       key,
			Size:      rec.S3.Object.Size,
			EventName: rec.EventName,
		})
	}
	return out, nil
}
