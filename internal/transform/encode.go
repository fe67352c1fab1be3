package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

// encode writes img in format. The stdlib encoders emit no EXIF, ICC, or
// other ancillary metadata, so derivatives never carry the source profile.
func encode(img image.Image, format derivative.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch {
	case format.IsJPEG():
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case format == derivative.FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case format == derivative.FormatGIF:
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("encode %s: empty output", format)
	}
	return buf.Bytes(), nil
}
