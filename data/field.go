package data

import (
	"math"
	"math/rand"

	ts "github.com/sugarme/gotch/tensor"
)

// Field is a dense 2d displacement field over an h x w pixel grid. Dx and
// Dy hold the x and y components in pixels, row major.
type Field struct {
	W, H   int
	Dx, Dy []float64
}

// NewField allocates a zero field.
func NewField(w, h int) *Field {
	return &Field{
		W:  w,
		H:  h,
		Dx: make([]float64, w*h),
		Dy: make([]float64, w*h),
	}
}

// RandomSmoothField draws a random field whose displacement magnitude is
// bounded by maxDisp pixels everywhere. Displacements are sampled on a
// coarse lattice with gridStep pixel spacing and bilinearly densified,
// which keeps the field smooth at building scale.
func RandomSmoothField(rng *rand.Rand, w, h, gridStep int, maxDisp float64) *Field {
	if gridStep < 1 {
		gridStep = 1
	}

	gw := w/gridStep + 2
	gh := h/gridStep + 2
	gx := make([]float64, gw*gh)
	gy := make([]float64, gw*gh)
	for i := range gx {
		angle := 2 * math.Pi * rng.Float64()
		r := maxDisp * rng.Float64()
		gx[i] = r * math.Cos(angle)
		gy[i] = r * math.Sin(angle)
	}

	// Bilinear interpolation is a convex combination of lattice values,
	// so the maxDisp bound survives densification.
	f := NewField(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64(x) / float64(gridStep)
			fy := float64(y) / float64(gridStep)
			x0 := int(fx)
			y0 := int(fy)
			tx := fx - float64(x0)
			ty := fy - float64(y0)
			i00 := y0*gw + x0
			idx := y*w + x
			f.Dx[idx] = lerp(lerp(gx[i00], gx[i00+1], tx), lerp(gx[i00+gw], gx[i00+gw+1], tx), ty)
			f.Dy[idx] = lerp(lerp(gy[i00], gy[i00+1], tx), lerp(gy[i00+gw], gy[i00+gw+1], tx), ty)
		}
	}

	return f
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// At returns the field bilinearly interpolated at (x, y). Samples outside
// the grid clamp to the border.
func (f *Field) At(x, y float64) (dx, dy float64) {
	x = clampF(x, 0, float64(f.W-1))
	y = clampF(y, 0, float64(f.H-1))
	x0 := int(x)
	y0 := int(y)
	x1 := minInt(x0+1, f.W-1)
	y1 := minInt(y0+1, f.H-1)
	tx := x - float64(x0)
	ty := y - float64(y0)

	dx = lerp(
		lerp(f.Dx[y0*f.W+x0], f.Dx[y0*f.W+x1], tx),
		lerp(f.Dx[y1*f.W+x0], f.Dx[y1*f.W+x1], tx),
		ty,
	)
	dy = lerp(
		lerp(f.Dy[y0*f.W+x0], f.Dy[y0*f.W+x1], tx),
		lerp(f.Dy[y1*f.W+x0], f.Dy[y1*f.W+x1], tx),
		ty,
	)

	return dx, dy
}

// Displace returns the polygon with every vertex shifted by the field
// value at its location.
func (f *Field) Displace(p Polygon) Polygon {
	return p.mapVertices(func(v Vertex) Vertex {
		dx, dy := f.At(v.X, v.Y)

		return Vertex{X: v.X + dx, Y: v.Y + dy}
	})
}

// Tensor returns the field as a (2, h, w) float tensor with both
// components divided by norm, dx first. A negative norm flips the field,
// which turns a perturbation into its correction.
func (f *Field) Tensor(norm float64) *ts.Tensor {
	plane := f.W * f.H
	vals := make([]float32, 2*plane)
	for i := range f.Dx {
		vals[i] = float32(f.Dx[i] / norm)
		vals[plane+i] = float32(f.Dy[i] / norm)
	}

	return ts.MustOfSlice(vals).MustView([]int64{2, int64(f.H), int64(f.W)}, true)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
