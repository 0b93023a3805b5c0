// Package imageutil provides the decode, encode and crop helpers shared by the
// detection and isolation stages.
//
// All coordinates follow the standard image convention: (0,0) is the top-left
// corner, regions are [x1,x2) x [y1,y2).
package imageutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // Register GIF format decoder
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/locus-lens/locus/internal/models"
)

// Decode decodes PNG, JPEG, GIF or WebP bytes, applying the EXIF orientation of JPEGs.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return img, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img as JPEG at quality 90. Alpha is dropped.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Base64PNG encodes img as a base64 PNG string.
func Base64PNG(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Crop extracts box from img. The box is clamped to the image first; an empty
// intersection is an error.
func Crop(img image.Image, box models.Box) (*image.NRGBA, error) {
	b := img.Bounds()
	clamped := box.Clamp(b.Dx(), b.Dy())
	if !clamped.Valid() {
		return nil, fmt.Errorf("invalid crop region %v for %dx%d image", box, b.Dx(), b.Dy())
	}
	rect := image.Rect(clamped.X1(), clamped.Y1(), clamped.X2(), clamped.Y2()).Add(b.Min)
	return imaging.Crop(img, rect), nil
}

// AlphaBounds returns the bounding rectangle of pixels with non-zero alpha,
// in img's coordinate space, and false when every pixel is fully transparent.
func AlphaBounds(img image.Image) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
