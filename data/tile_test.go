package data_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/mapalign/data"
)

// writeScene lays down a 256x256 scene with the given polygons and
// returns a tile config ready to cut it.
func writeScene(t *testing.T, polys []data.Polygon) data.TileConfig {
	t.Helper()

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "scene.png")
	writeScenePNG(t, imgPath, 256, 256)

	ann := &data.Annotation{
		Image:    "scene.png",
		Width:    256,
		Height:   256,
		Polygons: polys,
	}
	annPath := filepath.Join(dir, "scene.json")
	require.NoError(t, ann.Save(annPath))

	return data.TileConfig{
		Image:      imgPath,
		Annotation: annPath,
		OutDir:     filepath.Join(dir, "tiles"),
		TileSize:   128,
	}
}

func TestTile(t *testing.T) {
	// One building in the top-left window only.
	cfg := writeScene(t, []data.Polygon{{Outer: square(20, 20, 100, 100)}})

	written, err := data.Tile(cfg)
	require.NoError(t, err)
	require.Len(t, written, 1)

	ann, err := data.LoadAnnotation(written[0])
	require.NoError(t, err)
	assert.Equal(t, 128, ann.Width)
	assert.Equal(t, 128, ann.Height)
	require.Len(t, ann.Polygons, 1)

	minX, minY, maxX, maxY := ann.Polygons[0].Bounds()
	assert.Equal(t, []float64{20, 20, 100, 100}, []float64{minX, minY, maxX, maxY})
}

func TestTileKeepEmpty(t *testing.T) {
	cfg := writeScene(t, []data.Polygon{{Outer: square(20, 20, 100, 100)}})
	cfg.KeepEmpty = true

	written, err := data.Tile(cfg)
	require.NoError(t, err)
	assert.Len(t, written, 4)
}

func TestTileClipsAcrossWindows(t *testing.T) {
	// A building straddling the x=128 window boundary lands in both
	// windows of the top row, clipped and shifted to tile coordinates.
	cfg := writeScene(t, []data.Polygon{{Outer: square(100, 20, 150, 60)}})

	written, err := data.Tile(cfg)
	require.NoError(t, err)
	require.Len(t, written, 2)

	var maxXs []float64
	for _, path := range written {
		ann, err := data.LoadAnnotation(path)
		require.NoError(t, err)
		require.Len(t, ann.Polygons, 1)
		_, _, maxX, _ := ann.Polygons[0].Bounds()
		maxXs = append(maxXs, maxX)
	}

	// Left window keeps [100, 128], right window gets [0, 22].
	assert.ElementsMatch(t, []float64{128, 22}, maxXs)
}

func TestTileReduction(t *testing.T) {
	cfg := writeScene(t, []data.Polygon{{Outer: square(20, 20, 100, 100)}})
	cfg.Reduction = 2

	written, err := data.Tile(cfg)
	require.NoError(t, err)
	require.Len(t, written, 1)

	ann, err := data.LoadAnnotation(written[0])
	require.NoError(t, err)
	require.Len(t, ann.Polygons, 1)

	minX, _, maxX, _ := ann.Polygons[0].Bounds()
	assert.InDelta(t, 10, minX, 1e-9)
	assert.InDelta(t, 50, maxX, 1e-9)
}

func TestTileSceneTooSmall(t *testing.T) {
	cfg := writeScene(t, nil)
	cfg.TileSize = 512

	_, err := data.Tile(cfg)
	assert.Error(t, err)
}
