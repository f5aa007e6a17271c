// Package utils: prepare uploaded documents before they go to storage
package utils

import (
	"bytes"
	"errors"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // registers webp with image.Decode
)

var ErrUnsupportedType = errors.New("unsupported file type (need pdf/jpeg/png/webp)")

// Accepted document types.
var allowedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// DetectContentType sniffs the bytes; the client-supplied header is ignored.
func DetectContentType(b []byte) (string, error) {
	mt := mimetype.Detect(b)
	for m := mt; m != nil; m = m.Parent() {
		if allowedTypes[m.String()] {
			return m.String(), nil
		}
	}
	return "", ErrUnsupportedType
}

// PrepareDocument returns what should be uploaded for a document.
// PDFs pass through; images are re-encoded to JPEG by NormalizeToJPG.
func PrepareDocument(b []byte, maxWidth, quality int) ([]byte, string, error) {
	ct, err := DetectContentType(b)
	if err != nil {
		return nil, "", err
	}
	if ct == "application/pdf" {
		return b, ct, nil
	}
	out, err := NormalizeToJPG(b, maxWidth, quality)
	if err != nil {
		return nil, "", err
	}
	return out, "image/jpeg", nil
}

// NormalizeToJPG decodes input (jpg/png/webp), applies EXIF orientation,
// resizes to maxWidth (if > 0) keeping aspect, then encodes to JPEG.
func NormalizeToJPG(input []byte, maxWidth int, quality int) ([]byte, error) {
	if len(input) == 0 {
		return nil, errors.New("empty image")
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	// EXIF orientation is only read for JPEG; harmless for the rest
	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New("unsupported image format (need jpeg/png/webp)")
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
