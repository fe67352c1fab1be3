package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRootCmd_GeneratesDerivatives(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "local", "incoming", "profile", "u1.png"), 300, 200)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"--root", root, "incoming/profile/u1.png"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute error: %v\nstderr: %s", err, errOut.String())
	}

	tests := []struct {
		alias string
		size  int
	}{
		{"s", 80},
		{"m", 256},
		{"l", 640},
	}
	for _, tt := range tests {
		p := filepath.Join(root, "local", "derived", tt.alias, "profile", "u1.png")
		f, err := os.Open(p)
		if err != nil {
			t.Fatalf("derivative %s missing: %v", tt.alias, err)
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Width != tt.size || cfg.Height != tt.size {
			t.Errorf("%s: %dx%d, want %dx%d", tt.alias, cfg.Width, cfg.Height, tt.size, tt.size)
		}
		if !strings.Contains(out.String(), "derived/"+tt.alias+"/profile/u1.png") {
			t.Errorf("output lacks %s key:\n%s", tt.alias, out.String())
		}
	}
}

func TestRootCmd_ReportsFailures(t *testing.T) {
	root := t.TempDir()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"--root", root, "incoming/article/missing.jpg", "other/1.jpg"})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "2 of 2") {
		t.Fatalf("error = %v, want both images failed", err)
	}
	if !strings.Contains(errOut.String(), "[FAIL]:local/other/1.jpg:") {
		t.Errorf("stderr lacks path failure:\n%s", errOut.String())
	}
}

func TestRootCmd_DryRunWritesNothing(t *testing.T) {
	t.Cleanup(func() { dryRunFlag = false })
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "local", "incoming", "profile", "u2.png"), 120, 90)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"--root", root, "--dry-run", "incoming/profile/u2.png"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute error: %v\nstderr: %s", err, errOut.String())
	}

	if _, err := os.Stat(filepath.Join(root, "local", "derived")); !os.IsNotExist(err) {
		t.Errorf("dry run created derived/: %v", err)
	}
	if !strings.Contains(out.String(), "dry run: 3 derivatives generated") {
		t.Errorf("output lacks dry-run summary:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "derived/s/profile/u2.png") {
		t.Errorf("output lacks planned key:\n%s", out.String())
	}
}
