package imaging

import (
	"image"
	"image/color"
)

// RGB is a packed 3-bytes-per-pixel image, the only layout the extractors accept.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB allocates a black RGB image of the given bounds.
func NewRGB(r image.Rectangle) *RGB {
	return &RGB{
		Pix:    make([]uint8, 3*r.Dx()*r.Dy()),
		Stride: 3 * r.Dx(),
		Rect:   r,
	}
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }
func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 0xff}
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// Width and Height are shorthands used by the wire encoders.
func (p *RGB) Width() int  { return p.Rect.Dx() }
func (p *RGB) Height() int { return p.Rect.Dy() }

// BGR is the raw bgr24 layout produced by ffmpeg rawvideo output.
type BGR struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func (p *BGR) ColorModel() color.Model { return color.RGBAModel }
func (p *BGR) Bounds() image.Rectangle { return p.Rect }

func (p *BGR) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i+2], G: p.Pix[i+1], B: p.Pix[i], A: 0xff}
}

// BGRA is the 4-channel variant with a trailing alpha byte, as found in bgra pipes.
type BGRA struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func (p *BGRA) ColorModel() color.Model { return color.RGBAModel }
func (p *BGRA) Bounds() image.Rectangle { return p.Rect }

// At ignores alpha, matching how the frame is handed to the extractor.
func (p *BGRA) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
	return color.RGBA{R: p.Pix[i+2], G: p.Pix[i+1], B: p.Pix[i], A: 0xff}
}

// ToRGB normalizes any decoded frame to packed RGB.
// Grayscale is replicated into three channels; alpha is dropped.
func ToRGB(img image.Image) *RGB {
	if rgb, ok := img.(*RGB); ok {
		return rgb
	}

	b := img.Bounds()
	out := NewRGB(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
			dst := out.Pix[y*out.Stride:]
			for x, v := range row {
				dst[3*x], dst[3*x+1], dst[3*x+2] = v, v, v
			}
		}
	case *BGR:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < b.Dx(); x++ {
				dst[3*x], dst[3*x+1], dst[3*x+2] = row[3*x+2], row[3*x+1], row[3*x]
			}
		}
	case *BGRA:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < b.Dx(); x++ {
				dst[3*x], dst[3*x+1], dst[3*x+2] = row[4*x+2], row[4*x+1], row[4*x]
			}
		}
	case *image.YCbCr:
		// ffmpeg's mjpeg frames decode to this, so it skips the color.Color boxing
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst := out.Pix[(y-b.Min.Y)*out.Stride:]
			for x := b.Min.X; x < b.Max.X; x++ {
				yi, ci := src.YOffset(x, y), src.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				i := 3 * (x - b.Min.X)
				dst[i], dst[i+1], dst[i+2] = r, g, bl
			}
		}
	case *image.NRGBA:
		copyRGBA(out, src.Pix, src.Stride, b.Dx(), b.Dy())
	case *image.RGBA:
		copyRGBA(out, src.Pix, src.Stride, b.Dx(), b.Dy())
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				i := out.PixOffset(x-b.Min.X, y-b.Min.Y)
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
			}
		}
	}
	return out
}

func copyRGBA(out *RGB, pix []uint8, stride, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[y*stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[3*x], dst[3*x+1], dst[3*x+2] = row[4*x], row[4*x+1], row[4*x+2]
		}
	}
}
