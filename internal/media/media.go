// Package media stores generated artifacts on disk and handles image
// detection and normalisation.
package media

import (
	"encoding/base64"

	"github.com/gabriel-vasile/mimetype"
)

// Image limits for provider uploads.
const (
	MaxDimension = 2048             // Max width or height in pixels
	MaxBytes     = 20 * 1024 * 1024 // 20MB
)

// SupportedMIMETypes are the image types accepted from providers and as
// edit sources.
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageData is an encoded image with its detected type.
type ImageData struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Base64 returns the image data as standard base64.
func (img *ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURI returns the image as a data: URI.
func (img *ImageData) DataURI() string {
	return "data:" + img.MimeType + ";base64," + img.Base64()
}

// Size returns the size in bytes
func (img *ImageData) Size() int {
	return len(img.Data)
}

// DetectMIME returns the MIME type from magic bytes (not file extension)
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsSupported reports whether mimeType is a supported image type.
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[mimeType]
}

// ExtensionFor returns the file extension for a supported MIME type, or
// ".bin".
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}
