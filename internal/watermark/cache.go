package watermark

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
)

// AssetStore returns the raw bytes of a watermark stamp. Implementations
// must be safe for concurrent use.
type AssetStore interface {
	Get(ctx context.Context, reference string) ([]byte, error)
}

// BlobAssets reads stamps from a blob store bucket.
type BlobAssets struct {
	Store  blobstore.Store
	Bucket string
}

// Get fetches the stamp object named by reference.
func (b BlobAssets) Get(ctx context.Context, reference string) ([]byte, error) {
	obj, err := b.Store.Fetch(ctx, b.Bucket, reference)
	if err != nil {
		return nil, fmt.Errorf("fetch watermark %s/%s: %w", b.Bucket, reference, err)
	}
	return obj.Bytes, nil
}

// DefaultCacheEntries bounds the number of decoded stamps kept in memory.
const DefaultCacheEntries = 16

// Cache decodes stamps once per process and shares them across invocations.
// Concurrent loads of the same reference collapse into a single fetch.
// Cached images are shared and must be treated as read-only.
type Cache struct {
	store AssetStore

	mu    sync.Mutex
	lru   *lru.Cache
	group singleflight.Group
}

// NewCache wraps store with an LRU of maxEntries decoded images.
func NewCache(store AssetStore, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{store: store, lru: lru.New(maxEntries)}
}

// Image returns the decoded stamp for reference.
func (c *Cache) Image(ctx context.Context, reference string) (image.Image, error) {
	if img, ok := c.lookup(reference); ok {
		return img, nil
	}

	v, err, shared := c.group.Do(reference, func() (interface{}, error) {
		if img, ok := c.lookup(reference); ok {
			return img, nil
		}
		data, err := c.store.Get(ctx, reference)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode watermark %s: %w", reference, err)
		}
		c.mu.Lock()
		c.lru.Add(reference, img)
		c.mu.Unlock()
		log.Debug().
			Str("reference", reference).
			Int("bytes", len(data)).
			Int("width", img.Bounds().Dx()).
			Int("height", img.Bounds().Dy()).
			Msg("Watermark loaded")
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("reference", reference).Msg("Watermark load shared with concurrent caller")
	}
	return v.(image.Image), nil
}

func (c *Cache) lookup(reference string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(reference)
	if !ok {
		return nil, false
	}
	return v.(image.Image), true
}
