package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"

	// Register additional image formats
	_ "golang.org/x/image/webp"
)

// Normalize decodes any supported image and re-encodes it as PNG, fitting
// it within MaxDimension on both sides. Image edit endpoints only accept
// PNG sources.
func Normalize(data []byte) (*ImageData, error) {
	mimeType := DetectMIME(data)
	if !IsSupported(mimeType) {
		return nil, fmt.Errorf("unsupported image type: %s", mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	resized := false
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
		bounds = img.Bounds()
		resized = true
	}

	if mimeType == "image/png" && !resized {
		return &ImageData{Data: data, MimeType: mimeType, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return &ImageData{
		Data:     buf.Bytes(),
		MimeType: "image/png",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// Inspect detects the type and dimensions of an image without decoding the
// pixel data.
func Inspect(data []byte) (*ImageData, error) {
	mimeType := DetectMIME(data)
	if !IsSupported(mimeType) {
		return nil, fmt.Errorf("unsupported image type: %s", mimeType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	return &ImageData{Data: data, MimeType: mimeType, Width: cfg.Width, Height: cfg.Height}, nil
}
