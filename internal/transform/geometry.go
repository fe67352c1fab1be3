package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// FitDimensions returns the output size for FIT: the largest size that keeps
// the aspect ratio and fits inside target, never larger than the source.
func FitDimensions(width, height int, target derivative.Size) (int, int) {
	scale := math.Min(float64(target.Width)/float64(width), float64(target.Height)/float64(height))
	if scale >= 1 {
		return width, height
	}
	return atLeastOne(math.Round(float64(width) * scale)), atLeastOne(math.Round(float64(height) * scale))
}

// CropRegion returns the source rectangle CROP keeps: the largest region
// with the target's aspect ratio, centred in a width x height source.
// Odd leftover pixels go to the trailing edge.
func CropRegion(width, height int, target derivative.Size) image.Rectangle {
	cw, ch := width, height
	if width*target.Height > height*target.Width {
		cw = min(width, atLeastOne(math.Round(float64(height)*float64(target.Width)/float64(target.Height))))
	} else {
		ch = min(height, atLeastOne(math.Round(float64(width)*float64(target.Height)/float64(target.Width))))
	}
	x, y := (width-cw)/2, (height-ch)/2
	return image.Rect(x, y, x+cw, y+ch)
}

func fit(img image.Image, target derivative.Size) image.Image {
	b := img.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), target)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return resample(img, b, w, h)
}

// crop cuts the centred region and scales only that region; the working
// buffer never exceeds the target size.
func crop(img image.Image, target derivative.Size) image.Image {
	b := img.Bounds()
	region := CropRegion(b.Dx(), b.Dy(), target).Add(b.Min)
	if region.Dx() == target.Width && region.Dy() == target.Height {
		return imaging.Crop(img, region)
	}
	return resample(img, region, target.Width, target.Height)
}

// resample scales the sr part of img to exactly w x h with Catmull-Rom
// filtering. Pixels outside sr are not sampled.
func resample(img image.Image, sr image.Rectangle, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, sr, draw.Src, nil)
	return dst
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
