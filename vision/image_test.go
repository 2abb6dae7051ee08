package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	data := encodePNG(t, 4, 3, color.RGBA{255, 0, 0, 255})

	img, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 4 || img.Height != 3 {
		t.Errorf("decoded size = %dx%d, want 4x3", img.Width, img.Height)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestResize(t *testing.T) {
	img, err := Decode(encodePNG(t, 10, 20, color.RGBA{0, 255, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}

	resized, err := Resize(img, 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if resized.Width != 5 || resized.Height != 5 {
		t.Errorf("resized size = %dx%d, want 5x5", resized.Width, resized.Height)
	}

	if _, err := Resize(img, 0, 5); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestToCHW(t *testing.T) {
	img, err := Decode(encodePNG(t, 2, 2, color.RGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}

	tensor := ToCHW(img, NoNormMean, NoNormStd)
	if len(tensor) != 12 {
		t.Fatalf("tensor length = %d, want 12", len(tensor))
	}

	// Planar layout: R plane first, all ones for a red image.
	for i := 0; i < 4; i++ {
		if tensor[i] != 1.0 {
			t.Errorf("R[%d] = %f, want 1.0", i, tensor[i])
		}
	}
	for i := 4; i < 12; i++ {
		if tensor[i] != 0.0 {
			t.Errorf("G/B[%d] = %f, want 0.0", i, tensor[i])
		}
	}
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	img, err := Decode(encodePNG(t, 8, 8, color.RGBA{10, 20, 30, 255}))
	if err != nil {
		t.Fatal(err)
	}

	data, err := EncodeJPEG(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); err != nil {
		t.Errorf("re-decoding encoded jpeg: %v", err)
	}
}
