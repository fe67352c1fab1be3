package transform

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// EXIF orientation tag values (TIFF 6.0, tag 0x0112).
const (
	orientNormal      = 1
	orientFlipH       = 2
	orientRotate180   = 3
	orientFlipV       = 4
	orientTranspose   = 5
	orientRotate90CW  = 6
	orientTransverse  = 7
	orientRotate90CCW = 8
)

// readOrientation returns the EXIF orientation of an encoded image, or
// orientNormal when the format carries no EXIF or it cannot be parsed.
func readOrientation(data []byte, format derivative.Format) int {
	if format == derivative.FormatGIF {
		return orientNormal
	}
	exif, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("format", string(format)).Msg("No readable EXIF, assuming normal orientation")
		return orientNormal
	}
	o := int(exif.Orientation)
	if o < orientNormal || o > orientRotate90CCW {
		return orientNormal
	}
	return o
}

// applyOrientation rotates/flips img so its pixels match the intended view.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case orientFlipH:
		return imaging.FlipH(img)
	case orientRotate180:
		return imaging.Rotate180(img)
	case orientFlipV:
		return imaging.FlipV(img)
	case orientTranspose:
		return imaging.Transpose(img)
	case orientRotate90CW:
		return imaging.Rotate270(img)
	case orientTransverse:
		return imaging.Transverse(img)
	case orientRotate90CCW:
		return imaging.Rotate90(img)
	}
	return img
}
