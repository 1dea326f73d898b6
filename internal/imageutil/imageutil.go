// Package imageutil prepares creative images for the ad platform: pins
// use a 2:3 portrait at 1000x1500.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Pin image dimensions required by the ad platform's 2:3 format.
const (
	PinWidth  = 1000
	PinHeight = 1500
)

// CenterCrop returns the largest centred sub-rectangle of img matching
// the aspect ratio w:h.
func CenterCrop(img image.Image, w, h int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	// Compare aspect ratios without floating point
	cropW := srcW
	cropH := srcW * h / w
	if cropH > srcH {
		cropH = srcH
		cropW = srcH * w / h
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	draw.Copy(dst, image.Point{}, img, rect, draw.Src, nil)
	return dst
}

// Resize scales img to w x h using Catmull-Rom interpolation.
func Resize(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ToPinJPEG decodes image bytes, centre-crops to 2:3, resizes to
// 1000x1500, and re-encodes as JPEG.
func ToPinJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	out := Resize(CenterCrop(img, PinWidth, PinHeight), PinWidth, PinHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ToPinPNG decodes image bytes, centre-crops to 2:3, resizes to
// 1000x1500, and re-encodes as PNG. AI-generated creatives keep PNG to
// avoid double lossy compression.
func ToPinPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	out := Resize(CenterCrop(img, PinWidth, PinHeight), PinWidth, PinHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
