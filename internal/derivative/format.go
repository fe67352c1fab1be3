package derivative

import (
	"path"
	"strings"
)

// Format is the lower-cased file extension of a source key, without the dot.
type Format string

const (
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

// supportedFormats maps every accepted extension to its MIME type.
var supportedFormats = map[Format]string{
	FormatJPG:  "image/jpeg",
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
}

// FormatFromKey returns the lower-cased extension of the last path element.
// A key without an extension yields "".
func FormatFromKey(key string) Format {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	return Format(strings.ToLower(strings.TrimPrefix(ext, ".")))
}

// Supported reports whether the format is in the allow-list.
func (f Format) Supported() bool {
	_, ok := supportedFormats[f]
	return ok
}

// ContentType returns the MIME type for a supported format, or
// "application/octet-stream".
func (f Format) ContentType() string {
	if ct, ok := supportedFormats[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsJPEG reports whether the format is encoded as JPEG.
func (f Format) IsJPEG() bool {
	return f == FormatJPG || f == FormatJPEG
}
