package data_test

import (
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/data"
)

func sumValue(x *ts.Tensor) float64 {
	sum := x.MustSum(gotch.Double, false)
	v := sum.Float64Values()[0]
	sum.MustDrop()

	return v
}

func TestRasterize(t *testing.T) {
	polys := []data.Polygon{{Outer: square(2, 2, 8, 8)}}

	mask := data.Rasterize(polys, 10, 10)

	if a := mask.AlphaAt(4, 4).A; a != 255 {
		t.Errorf("interior alpha: expected 255, got %v", a)
	}
	if a := mask.AlphaAt(0, 0).A; a != 0 {
		t.Errorf("exterior alpha: expected 0, got %v", a)
	}
}

func TestRasterizeHole(t *testing.T) {
	polys := []data.Polygon{{
		Outer: square(2, 2, 8, 8),
		// Wind the hole opposite to the outer ring so it cuts coverage.
		Holes: []data.Ring{{{X: 4, Y: 4}, {X: 4, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 4}}},
	}}

	mask := data.Rasterize(polys, 10, 10)

	if a := mask.AlphaAt(5, 5).A; a != 0 {
		t.Errorf("hole alpha: expected 0, got %v", a)
	}
	if a := mask.AlphaAt(3, 3).A; a != 255 {
		t.Errorf("ring alpha: expected 255, got %v", a)
	}
}

func TestMaskTensor(t *testing.T) {
	mask := data.Rasterize([]data.Polygon{{Outer: square(2, 2, 8, 8)}}, 10, 10)

	x := data.MaskTensor(mask)
	defer x.MustDrop()

	wantShape := []int64{1, 10, 10}
	if got := x.MustSize(); !reflect.DeepEqual(wantShape, got) {
		t.Errorf("shape: expected %v, got %v", wantShape, got)
	}

	// A 6x6 square on integer boundaries covers exactly 36 pixels.
	if sum := sumValue(x); math.Abs(sum-36) > 0.5 {
		t.Errorf("mask mass: expected 36, got %v", sum)
	}
}

func TestImageTensor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	x := data.ImageTensor(img)
	defer x.MustDrop()

	wantShape := []int64{3, 3, 4}
	if got := x.MustSize(); !reflect.DeepEqual(wantShape, got) {
		t.Errorf("shape: expected %v, got %v", wantShape, got)
	}

	// Only the red plane carries mass.
	if sum := sumValue(x); math.Abs(sum-12) > 1e-3 {
		t.Errorf("tensor mass: expected 12, got %v", sum)
	}
}

func TestGrayImage(t *testing.T) {
	x := ts.MustOfSlice([]float32{0, 0.5, 1, 0.25}).MustView([]int64{1, 2, 2}, true)
	defer x.MustDrop()

	img := data.GrayImage(x)

	want := []uint8{0, 128, 255, 64}
	if !reflect.DeepEqual(want, img.Pix) {
		t.Errorf("pixels: expected %v, got %v", want, img.Pix)
	}
}

func TestFieldTensor(t *testing.T) {
	f := data.NewField(3, 2)
	for i := range f.Dx {
		f.Dx[i] = 2
		f.Dy[i] = -4
	}

	x := f.Tensor(-4)
	defer x.MustDrop()

	wantShape := []int64{2, 2, 3}
	if got := x.MustSize(); !reflect.DeepEqual(wantShape, got) {
		t.Errorf("shape: expected %v, got %v", wantShape, got)
	}

	vals := x.MustTotype(gotch.Double, false)
	got := vals.Float64Values()
	vals.MustDrop()

	// Dividing by a negative norm flips the field: dx 2/-4 = -0.5,
	// dy -4/-4 = 1.
	for i := 0; i < 6; i++ {
		if math.Abs(got[i]+0.5) > 1e-6 {
			t.Errorf("dx plane at %v: expected -0.5, got %v", i, got[i])
		}
		if math.Abs(got[6+i]-1) > 1e-6 {
			t.Errorf("dy plane at %v: expected 1, got %v", i, got[6+i])
		}
	}
}

func TestOverlay(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	mask := data.Rasterize([]data.Polygon{{Outer: square(0, 0, 2, 2)}}, 4, 4)

	out := data.Overlay(img, mask, color.NRGBA{R: 255, A: 128})

	masked := out.RGBAAt(1, 1)
	plain := out.RGBAAt(3, 3)
	if masked.R <= plain.R {
		t.Errorf("masked pixel should gain red: masked %v, plain %v", masked.R, plain.R)
	}
	if plain.R != 10 {
		t.Errorf("unmasked pixel: expected red 10, got %v", plain.R)
	}
}
