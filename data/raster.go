package data

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// ReadImage reads an image from file, picking the decoder by extension.
func ReadImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		err = fmt.Errorf("Unsupported image format: %v\n", ext)
		return nil, err
	}
}

// WritePNG saves an image as png.
func WritePNG(filename string, img image.Image) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}

// Rasterize renders polygons into a w x h anti-aliased alpha mask. The
// fill rule is non-zero winding, so holes cut coverage as long as they
// wind opposite to their outer ring.
func Rasterize(polys []Polygon, w, h int) *image.Alpha {
	ras := vector.NewRasterizer(w, h)
	for _, p := range polys {
		rasterRing(ras, p.Outer)
		for _, hole := range p.Holes {
			rasterRing(ras, hole)
		}
	}

	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	ras.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})

	return dst
}

func rasterRing(ras *vector.Rasterizer, r Ring) {
	if len(r) < 3 {
		return
	}

	ras.MoveTo(float32(r[0].X), float32(r[0].Y))
	for _, v := range r[1:] {
		ras.LineTo(float32(v.X), float32(v.Y))
	}
	ras.ClosePath()
}

// MaskTensor converts an alpha mask to a (1, h, w) float tensor in
// [0, 1].
func MaskTensor(mask *image.Alpha) *ts.Tensor {
	b := mask.Bounds()
	w := b.Dx()
	h := b.Dy()
	vals := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vals[y*w+x] = float32(mask.AlphaAt(b.Min.X+x, b.Min.Y+y).A) / 255.0
		}
	}

	return ts.MustOfSlice(vals).MustView([]int64{1, int64(h), int64(w)}, true)
}

// ImageTensor converts an image to a (3, h, w) float tensor in [0, 1].
func ImageTensor(img image.Image) *ts.Tensor {
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	plane := w * h
	vals := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*w + x
			vals[idx] = float32(r) / 65535.0
			vals[plane+idx] = float32(g) / 65535.0
			vals[2*plane+idx] = float32(bl) / 65535.0
		}
	}

	return ts.MustOfSlice(vals).MustView([]int64{3, int64(h), int64(w)}, true)
}

// GrayImage renders a tensor whose trailing dimensions are (h, w), with
// values in [0, 1], as a grayscale image. Leading dimensions must be
// singletons. Values outside [0, 1] clamp.
func GrayImage(x *ts.Tensor) *image.Gray {
	size := x.MustSize()
	h := int(size[len(size)-2])
	w := int(size[len(size)-1])

	flat := x.MustReshape([]int64{-1}, false).MustTotype(gotch.Double, true)
	vals := flat.Float64Values()
	flat.MustDrop()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range vals {
		img.Pix[i] = uint8(clampF(v, 0, 1)*255 + 0.5)
	}

	return img
}

// Overlay paints the masked region over the image in the given color for
// visual inspection. The color's own alpha sets the blend opacity, e.g.
// color.NRGBA{R: 255, A: 64} gives a 25% red wash.
func Overlay(img image.Image, mask *image.Alpha, c color.Color) *image.RGBA {
	rec := img.Bounds()
	dst := image.NewRGBA(rec)
	draw.Copy(dst, rec.Min, img, rec, draw.Src, nil)
	draw.DrawMask(dst, rec, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)

	return dst
}
