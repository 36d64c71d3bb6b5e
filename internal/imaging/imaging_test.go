package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRGB(t *testing.T) {
	rect := image.Rect(0, 0, 2, 1)

	gray := image.NewGray(rect)
	gray.SetGray(0, 0, color.Gray{Y: 10})
	gray.SetGray(1, 0, color.Gray{Y: 200})

	bgr := &BGR{Pix: []uint8{1, 2, 3, 4, 5, 6}, Stride: 6, Rect: rect}
	bgra := &BGRA{Pix: []uint8{1, 2, 3, 255, 4, 5, 6, 0}, Stride: 8, Rect: rect}

	nrgba := image.NewNRGBA(rect)
	nrgba.SetNRGBA(0, 0, color.NRGBA{R: 3, G: 2, B: 1, A: 255})
	nrgba.SetNRGBA(1, 0, color.NRGBA{R: 6, G: 5, B: 4, A: 0})

	tests := []struct {
		name string
		in   image.Image
		want []uint8
	}{
		{"grayscale", gray, []uint8{10, 10, 10, 200, 200, 200}},
		{"bgr", bgr, []uint8{3, 2, 1, 6, 5, 4}},
		{"bgra drops alpha", bgra, []uint8{3, 2, 1, 6, 5, 4}},
		{"nrgba drops alpha", nrgba, []uint8{3, 2, 1, 6, 5, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToRGB(tt.in)
			assert.Equal(t, 2, got.Width())
			assert.Equal(t, 1, got.Height())
			assert.Equal(t, tt.want, got.Pix)
		})
	}
}

func TestToRGBPassthrough(t *testing.T) {
	rgb := NewRGB(image.Rect(0, 0, 4, 4))
	assert.Same(t, rgb, ToRGB(rgb))
}

func TestToRGBYCbCr(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)
	for i := range ycc.Y {
		ycc.Y[i] = 128
		ycc.Cb[i] = 128
		ycc.Cr[i] = 128
	}

	got := ToRGB(ycc)
	require.Len(t, got.Pix, 12)
	for _, v := range got.Pix {
		assert.InDelta(t, 128, int(v), 1)
	}
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 960, 480))

	got := Fit(img, 480)
	assert.Equal(t, 480, got.Bounds().Dx())
	assert.Equal(t, 240, got.Bounds().Dy())

	assert.Same(t, img, Fit(img, 0))
	assert.Same(t, img, Fit(img, 2000))

	tall := image.NewRGBA(image.Rect(0, 0, 100, 400))
	got = Fit(tall, 200)
	assert.Equal(t, 50, got.Bounds().Dx())
	assert.Equal(t, 200, got.Bounds().Dy())
}

func TestFitWidth(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 720, 1280))
	got := FitWidth(img, 360)
	assert.Equal(t, 360, got.Bounds().Dx())
	assert.Equal(t, 640, got.Bounds().Dy())
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	img, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	garbage := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = DecodeFile(garbage)
	assert.Error(t, err)
}

func TestToRGBGenericPath(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{
		color.RGBA{R: 255, A: 255},
		color.RGBA{B: 255, A: 255},
	})
	pal.SetColorIndex(1, 0, 1)

	assert.Equal(t, []uint8{255, 0, 0, 0, 0, 255}, ToRGB(pal).Pix)
}
