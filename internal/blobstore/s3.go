package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=lambda-s3-resize"

// ProjectTagging returns a pointer to the URL-encoded S3 object tagging string.
func ProjectTagging() *string {
	t := projectTag
	return &t
}

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements Store on Amazon S3.
type S3Store struct {
	client S3API
}

// NewS3Store creates an S3Store. client is usually an *s3.Client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Fetch downloads an object fully into memory.
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) (Object, error) {
	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return Object{}, fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, derivative.ErrNotFound)
		}
		return Object{}, fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return Object{}, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}

	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("size", len(data)).
		Str("contentType", contentType).
		Dur("duration", time.Since(start)).
		Msg("Downloaded from S3")
	return Object{ContentType: contentType, Bytes: data}, nil
}

// Put uploads an object, replacing any existing object at the key.
func (s *S3Store) Put(ctx context.Context, in PutInput) error {
	start := time.Now()
	input := &s3.PutObjectInput{
		Bucket:      &in.Bucket,
		Key:         &in.Key,
		Body:        bytes.NewReader(in.Bytes),
		ContentType: &in.ContentType,
		Tagging:     ProjectTagging(),
	}
	if in.Visibility == VisibilityPublic {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", in.Bucket, in.Key, err)
	}
	log.Debug().
		Str("bucket", in.Bucket).
		Str("key", in.Key).
		Int("size", len(in.Bytes)).
		Dur("duration", time.Since(start)).
		Msg("Uploaded to S3")
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
