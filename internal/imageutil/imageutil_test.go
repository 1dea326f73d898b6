package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	return img
}

func TestCenterCrop_WideSource(t *testing.T) {
	// 3000x1500 source cropped to 2:3 keeps full height, 1000 width
	cropped := CenterCrop(testImage(3000, 1500), 1000, 1500)
	b := cropped.Bounds()
	if b.Dx() != 1000 || b.Dy() != 1500 {
		t.Errorf("crop = %dx%d, want 1000x1500", b.Dx(), b.Dy())
	}
}

func TestCenterCrop_TallSource(t *testing.T) {
	// 1000x3000 source cropped to 2:3 keeps full width, 1500 height
	cropped := CenterCrop(testImage(1000, 3000), 1000, 1500)
	b := cropped.Bounds()
	if b.Dx() != 1000 || b.Dy() != 1500 {
		t.Errorf("crop = %dx%d, want 1000x1500", b.Dx(), b.Dy())
	}
}

func TestToPinJPEG(t *testing.T) {
	var src bytes.Buffer
	if err := jpeg.Encode(&src, testImage(800, 600), nil); err != nil {
		t.Fatalf("encode source: %v", err)
	}

	out, err := ToPinJPEG(src.Bytes())
	if err != nil {
		t.Fatalf("ToPinJPEG() error: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != PinWidth || b.Dy() != PinHeight {
		t.Errorf("output = %dx%d, want %dx%d", b.Dx(), b.Dy(), PinWidth, PinHeight)
	}
}

func TestToPinPNG_AcceptsPNGSource(t *testing.T) {
	var src bytes.Buffer
	if err := png.Encode(&src, testImage(1024, 1536)); err != nil {
		t.Fatalf("encode source: %v", err)
	}

	out, err := ToPinPNG(src.Bytes())
	if err != nil {
		t.Fatalf("ToPinPNG() error: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != PinWidth || b.Dy() != PinHeight {
		t.Errorf("output = %dx%d, want %dx%d", b.Dx(), b.Dy(), PinWidth, PinHeight)
	}
}

func TestToPinJPEG_BadBytes(t *testing.T) {
	if _, err := ToPinJPEG([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}
