package data_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/mapalign/data"
)

func square(x0, y0, x1, y1 float64) data.Ring {
	return data.Ring{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
	}
}

func TestPolygonBounds(t *testing.T) {
	p := data.Polygon{Outer: square(2, 3, 8, 7)}

	minX, minY, maxX, maxY := p.Bounds()

	assert.Equal(t, 2.0, minX)
	assert.Equal(t, 3.0, minY)
	assert.Equal(t, 8.0, maxX)
	assert.Equal(t, 7.0, maxY)
}

func TestPolygonTranslateScale(t *testing.T) {
	p := data.Polygon{Outer: square(1, 1, 3, 3)}

	moved := p.Translate(2, -1)
	assert.Equal(t, data.Vertex{X: 3, Y: 0}, moved.Outer[0])

	scaled := p.Scale(2)
	assert.Equal(t, data.Vertex{X: 6, Y: 6}, scaled.Outer[2])
}

func TestPolygonFlip(t *testing.T) {
	p := data.Polygon{Outer: square(2, 2, 4, 6)}

	flipped := p.FlipH(10)
	minX, _, maxX, _ := flipped.Bounds()
	assert.Equal(t, 6.0, minX)
	assert.Equal(t, 8.0, maxX)

	// Flipping twice restores the original.
	assert.Equal(t, p, flipped.FlipH(10))
	assert.Equal(t, p, p.FlipV(12).FlipV(12))
}

func TestPolygonClipRect(t *testing.T) {
	tests := []struct {
		name string
		poly data.Polygon
		want data.Ring
		ok   bool
	}{
		{
			name: "fully inside",
			poly: data.Polygon{Outer: square(2, 2, 8, 8)},
			want: square(2, 2, 8, 8),
			ok:   true,
		},
		{
			name: "straddles right edge",
			poly: data.Polygon{Outer: square(5, 2, 15, 8)},
			want: data.Ring{{X: 5, Y: 2}, {X: 10, Y: 2}, {X: 10, Y: 8}, {X: 5, Y: 8}},
			ok:   true,
		},
		{
			name: "fully outside",
			poly: data.Polygon{Outer: square(12, 12, 20, 20)},
			ok:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clipped, ok := tc.poly.ClipRect(0, 0, 10, 10)

			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, clipped.Outer)
			}
		})
	}
}

func TestPolygonClipRectHoles(t *testing.T) {
	p := data.Polygon{
		Outer: square(0, 0, 20, 20),
		Holes: []data.Ring{
			{{X: 2, Y: 2}, {X: 2, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 2}},     // inside the window
			{{X: 12, Y: 12}, {X: 12, Y: 18}, {X: 18, Y: 18}, {X: 18, Y: 12}}, // outside
		},
	}

	clipped, ok := p.ClipRect(0, 0, 10, 10)

	require.True(t, ok)
	require.Len(t, clipped.Holes, 1)
	minX, minY, maxX, maxY := clipped.Bounds()
	assert.Equal(t, []float64{0, 0, 10, 10}, []float64{minX, minY, maxX, maxY})
}

func TestAnnotationRoundTrip(t *testing.T) {
	ann := &data.Annotation{
		Image:  "tile.png",
		Width:  64,
		Height: 64,
		Polygons: []data.Polygon{
			{Outer: square(10, 10, 30, 30)},
		},
	}

	path := filepath.Join(t.TempDir(), "tile.json")
	require.NoError(t, ann.Save(path))

	loaded, err := data.LoadAnnotation(path)
	require.NoError(t, err)
	assert.Equal(t, ann, loaded)
}

func TestLoadAnnotationBadFile(t *testing.T) {
	_, err := data.LoadAnnotation(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
