// Package blobstore provides the object storage the resize pipeline reads
// sources from and writes derivatives to.
//
// S3Store is the production implementation. DirStore maps buckets to local
// directories for the CLI, MemStore keeps objects in memory, and Overlay
// diverts writes from a base store into a MemStore.
package blobstore

import (
	"context"
)

// Visibility controls who may read a stored derivative.
type Visibility string

const (
	// VisibilityPublic makes the object world-readable (S3 canned ACL public-read).
	VisibilityPublic Visibility = "public-read"
	// VisibilityPrivate leaves access to the bucket policy.
	VisibilityPrivate Visibility = "private"
)

// Object is a fetched blob.
type Object struct {
	ContentType string
	Bytes       []byte
}

// PutInput describes one write.
type PutInput struct {
	Bucket      string
	Key         string
	Bytes       []byte
	ContentType string
	Visibility  Visibility
}

// Store fetches and writes blobs. Fetch returns an error wrapping
// derivative.ErrNotFound for missing objects. Put must be safe to call
// concurrently for distinct keys and overwrites existing objects.
type Store interface {
	Fetch(ctx context.Context, bucket, key string) (Object, error)
	Put(ctx context.Context, in PutInput) error
}
