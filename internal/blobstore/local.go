package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// DirStore maps each bucket to a sub-directory of Root. Content types are
// derived from the key extension; visibility is ignored.
type DirStore struct {
	Root string
}

func (d DirStore) path(bucket, key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(bucket, "/") || bucket == ".." {
		return "", fmt.Errorf("invalid object %s/%s", bucket, key)
	}
	return filepath.Join(d.Root, bucket, filepath.FromSlash(clean)), nil
}

// Fetch reads <Root>/<bucket>/<key>.
func (d DirStore) Fetch(ctx context.Context, bucket, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	p, err := d.path(bucket, key)
	if err != nil {
		return Object{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, fmt.Errorf("read %s: %w", p, derivative.ErrNotFound)
		}
		return Object{}, fmt.Errorf("read %s: %w", p, err)
	}
	return Object{ContentType: mime.TypeByExtension(path.Ext(key)), Bytes: data}, nil
}

// Put writes <Root>/<bucket>/<key>, creating parent directories.
func (d DirStore) Put(ctx context.Context, in PutInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.path(in.Bucket, in.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(p, in.Bytes, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// MemStore is an in-memory Store safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]Object
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]Object)}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

// Fetch returns a copy-free view of the stored object.
func (m *MemStore) Fetch(ctx context.Context, bucket, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return Object{}, fmt.Errorf("%s/%s: %w", bucket, key, derivative.ErrNotFound)
	}
	return obj, nil
}

// Put stores the object, replacing any previous value.
func (m *MemStore) Put(ctx context.Context, in PutInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(in.Bucket, in.Key)] = Object{ContentType: in.ContentType, Bytes: in.Bytes}
	return nil
}

// Keys returns every stored "<bucket>/<key>" in unspecified order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Overlay reads from Base and sends every write to Writes, leaving Base
// untouched. The CLI uses it for dry runs.
type Overlay struct {
	Base   Store
	Writes *MemStore
}

// Fetch reads from Base.
func (o Overlay) Fetch(ctx context.Context, bucket, key string) (Object, error) {
	return o.Base.Fetch(ctx, bucket, key)
}

// Put stores the object in Writes.
func (o Overlay) Put(ctx context.Context, in PutInput) error {
	return o.Writes.Put(ctx, in)
}
