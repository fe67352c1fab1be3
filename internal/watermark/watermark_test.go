package watermark

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
)

func TestSelector_DefaultTiers(t *testing.T) {
	s := NewSelector(DefaultTiers)
	tests := []struct {
		size    int
		wantRef string
		wantOK  bool
	}{
		{80, "", false},
		{601, "", false},
		{639, "", false},
		{640, "stamp/watermark_640.png", true},
		{900, "stamp/watermark_640.png", true},
		{960, "stamp/watermark_960.png", true},
		{1001, "stamp/watermark_960.png", true},
		{1279, "stamp/watermark_960.png", true},
		{1280, "stamp/watermark_1280.png", true},
		{4000, "stamp/watermark_1280.png", true},
	}

	for _, tt := range tests {
		got, ok := s.Select(tt.size)
		if ok != tt.wantOK || got.Reference != tt.wantRef {
			t.Errorf("Select(%d) = %q, %v; want %q, %v", tt.size, got.Reference, ok, tt.wantRef, tt.wantOK)
		}
	}
}

func TestSelector_UnsortedInputAndNil(t *testing.T) {
	s := NewSelector([]Asset{{Reference: "small", Threshold: 10}, {Reference: "big", Threshold: 100}})
	if got, _ := s.Select(150); got.Reference != "big" {
		t.Errorf("Select(150) = %q, want big", got.Reference)
	}

	var nilSel *Selector
	if _, ok := nilSel.Select(5000); ok {
		t.Error("nil selector should never select")
	}
}

type countingStore struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (c *countingStore) Get(ctx context.Context, ref string) ([]byte, error) {
	c.calls.Add(1)
	return c.data, c.err
}

func stampPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 128})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCache_DecodesOnce(t *testing.T) {
	store := &countingStore{data: stampPNG(t)}
	c := NewCache(store, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := c.Image(context.Background(), "stamp/watermark_640.png")
			if err != nil {
				t.Errorf("Image error: %v", err)
				return
			}
			if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
				t.Errorf("bounds = %v", img.Bounds())
			}
		}()
	}
	wg.Wait()

	if _, err := c.Image(context.Background(), "stamp/watermark_640.png"); err != nil {
		t.Fatal(err)
	}
	if n := store.calls.Load(); n != 1 {
		t.Errorf("store calls = %d, want 1", n)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	store := &countingStore{err: errors.New("denied")}
	c := NewCache(store, 0)

	for i := 0; i < 2; i++ {
		if _, err := c.Image(context.Background(), "stamp/x.png"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := store.calls.Load(); n != 2 {
		t.Errorf("store calls = %d, want 2", n)
	}
}

func TestCache_BadImage(t *testing.T) {
	c := NewCache(&countingStore{data: []byte("not an image")}, 1)
	if _, err := c.Image(context.Background(), "stamp/x.png"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBlobAssets(t *testing.T) {
	mem := blobstore.NewMemStore()
	_ = mem.Put(context.Background(), blobstore.PutInput{Bucket: "assets", Key: "stamp/w.png", Bytes: []byte("png")})

	got, err := BlobAssets{Store: mem, Bucket: "assets"}.Get(context.Background(), "stamp/w.png")
	if err != nil || string(got) != "png" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if _, err := (BlobAssets{Store: mem, Bucket: "assets"}).Get(context.Background(), "stamp/missing.png"); err == nil {
		t.Error("expected error for missing stamp")
	}
}
