package data

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// TileConfig drives Tile.
type TileConfig struct {
	Image      string  // source scene raster
	Annotation string  // polygon sidecar over the source raster
	OutDir     string
	TileSize   int     // square tile edge after reduction
	Stride     int     // step between tile origins, defaults to TileSize
	Reduction  float64 // downscale factor applied before tiling, <= 1 keeps full resolution
	KeepEmpty  bool    // keep tiles without any polygon
	Workers    int     // concurrent tile writers, defaults to GOMAXPROCS-1
}

// Tile cuts an annotated scene into training tiles. It downscales the
// scene, walks a regular grid, clips the polygons to every window and
// writes a png plus annotation sidecar per kept tile. Tiles without
// polygons are skipped unless KeepEmpty is set, and blank windows are
// always skipped. It returns the sidecar paths of the written tiles.
func Tile(cfg TileConfig) ([]string, error) {
	src, err := ReadImage(cfg.Image)
	if err != nil {
		return nil, err
	}

	ann, err := LoadAnnotation(cfg.Annotation)
	if err != nil {
		return nil, err
	}

	polys := ann.Polygons
	if cfg.Reduction > 1 {
		b := src.Bounds()
		rw := uint(float64(b.Dx()) / cfg.Reduction)
		rh := uint(float64(b.Dy()) / cfg.Reduction)
		src = resize.Resize(rw, rh, src, resize.Lanczos3)
		scaled := make([]Polygon, len(polys))
		for i, p := range polys {
			scaled[i] = p.Scale(1 / cfg.Reduction)
		}
		polys = scaled
	}

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return nil, err
	}

	stride := cfg.Stride
	if stride <= 0 {
		stride = cfg.TileSize
	}

	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w < cfg.TileSize || h < cfg.TileSize {
		return nil, fmt.Errorf("Scene %vx%v smaller than tile size %v", w, h, cfg.TileSize)
	}

	var windows []image.Point
	for y := 0; y+cfg.TileSize <= h; y += stride {
		for x := 0; x+cfg.TileSize <= w; x += stride {
			windows = append(windows, image.Point{X: x, Y: y})
		}
	}

	base := stem(cfg.Image)

	var mu sync.Mutex
	var written []string
	var g errgroup.Group
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.GOMAXPROCS(0)-1, 1)
	}
	g.SetLimit(workers)

	for i, win := range windows {
		i, win := i, win
		g.Go(func() error {
			path, err := writeTile(cfg, src, polys, win, fmt.Sprintf("%v_%04d", base, i))
			if err != nil {
				return err
			}
			if path == "" {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			written = append(written, path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return written, nil
}

// writeTile cuts one window, returning an empty path when the tile is
// skipped.
func writeTile(cfg TileConfig, src image.Image, polys []Polygon, win image.Point, name string) (string, error) {
	x0 := float64(win.X)
	y0 := float64(win.Y)
	x1 := x0 + float64(cfg.TileSize)
	y1 := y0 + float64(cfg.TileSize)

	var kept []Polygon
	for _, p := range polys {
		if clipped, ok := p.ClipRect(x0, y0, x1, y1); ok {
			kept = append(kept, clipped.Translate(-x0, -y0))
		}
	}
	if len(kept) == 0 && !cfg.KeepEmpty {
		return "", nil
	}

	rec := image.Rect(win.X, win.Y, win.X+cfg.TileSize, win.Y+cfg.TileSize)
	subImg, err := cropImage(src, rec)
	if err != nil {
		return "", err
	}
	if isBlank(subImg) {
		return "", nil
	}

	imgName := name + ".png"
	if err := WritePNG(filepath.Join(cfg.OutDir, imgName), subImg); err != nil {
		return "", err
	}

	tileAnn := Annotation{
		Image:    imgName,
		Width:    cfg.TileSize,
		Height:   cfg.TileSize,
		Polygons: kept,
	}
	annPath := filepath.Join(cfg.OutDir, name+".json")
	if err := tileAnn.Save(annPath); err != nil {
		return "", err
	}

	return annPath, nil
}

// cropImage takes an image and crops it to the specified rectangle.
func cropImage(img image.Image, crop image.Rectangle) (image.Image, error) {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}

	simg, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("image does not support cropping")
	}

	return simg.SubImage(crop), nil
}

// isBlank reports whether a window carries almost no image signal, e.g.
// nodata borders of an orthophoto. It checks the luminance spread over a
// sparse pixel sample.
func isBlank(img image.Image) bool {
	const spreadThreshold = 8.0 / 255.0

	b := img.Bounds()
	buf := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(buf, image.Point{}, img, b, draw.Src, nil)

	step := max(b.Dx()/64, 1)
	minLum := math.Inf(1)
	maxLum := math.Inf(-1)
	for y := 0; y < b.Dy(); y += step {
		for x := 0; x < b.Dx(); x += step {
			c := buf.NRGBAAt(x, y)
			lum := (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
			minLum = math.Min(minLum, lum)
			maxLum = math.Max(maxLum, lum)
		}
	}

	return maxLum-minLum < spreadThreshold
}

func stem(path string) string {
	base := filepath.Base(path)

	return base[:len(base)-len(filepath.Ext(base))]
}
