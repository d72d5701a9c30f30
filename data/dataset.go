package data

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// Sample is one training example. The polygon map raster is the
// misaligned footprint layer, Disp the normalized correction field that
// moves it back onto the image, and SegMask the aligned footprints.
type Sample struct {
	Image   ts.Tensor // (3, h, w) in [0, 1]
	PolyMap ts.Tensor // (1, h, w) in [0, 1]
	Disp    ts.Tensor // (2, h, w) in [-1, 1]
	SegMask ts.Tensor // (1, h, w) in [0, 1]
}

// MustDrop frees all sample tensors.
func (s *Sample) MustDrop() {
	s.Image.MustDrop()
	s.PolyMap.MustDrop()
	s.Disp.MustDrop()
	s.SegMask.MustDrop()
}

// DatasetConfig drives sample synthesis.
type DatasetConfig struct {
	Dir      string  // directory of annotation sidecars and their tiles
	MaxDisp  float64 // perturbation amplitude in pixels
	GridStep int     // lattice spacing of the random fields in pixels
	Augment  bool    // random flips and photometric jitter
	Seed     int64
}

// AlignDataset synthesizes alignment training samples from annotated
// tiles. Each item perturbs the tile's polygons with a fresh random
// smooth field, rasterizes the perturbed footprints as the polygon map
// input, and uses the inverse field as the displacement target.
type AlignDataset struct {
	cfg   DatasetConfig
	files []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAlignDataset scans dir for annotation sidecars.
func NewAlignDataset(cfg DatasetConfig) (*AlignDataset, error) {
	files, err := filepath.Glob(filepath.Join(cfg.Dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("No annotations found under %v", cfg.Dir)
	}

	return &AlignDataset{
		cfg:   cfg,
		files: files,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Subset returns a view over the files in [from, to). The view draws from
// its own random stream so siblings stay independent.
func (d *AlignDataset) Subset(from, to int) *AlignDataset {
	return &AlignDataset{
		cfg:   d.cfg,
		files: d.files[from:to],
		rng:   rand.New(rand.NewSource(d.cfg.Seed + int64(from) + 1)),
	}
}

// Files returns the annotation paths backing the dataset.
func (d *AlignDataset) Files() []string {
	return d.files
}

// Len implements dutil.Dataset.
func (d *AlignDataset) Len() int {
	return len(d.files)
}

// DType implements dutil.Dataset.
func (d *AlignDataset) DType() reflect.Type {
	return reflect.TypeOf(Sample{})
}

// Item implements dutil.Dataset. It loads the tile, applies geometric and
// photometric augmentation, then perturbs the polygons and rasterizes
// both the perturbed and the true footprints.
func (d *AlignDataset) Item(idx int) (interface{}, error) {
	ann, err := LoadAnnotation(d.files[idx])
	if err != nil {
		return nil, err
	}

	img, err := ReadImage(filepath.Join(filepath.Dir(d.files[idx]), ann.Image))
	if err != nil {
		return nil, err
	}

	w := ann.Width
	h := ann.Height

	d.mu.Lock()
	flipH := d.cfg.Augment && d.rng.Float64() < 0.5
	flipV := d.cfg.Augment && d.rng.Float64() < 0.5
	brightness := (d.rng.Float64()*2 - 1) * 10 // percent
	contrast := (d.rng.Float64()*2 - 1) * 10   // percent
	field := RandomSmoothField(d.rng, w, h, d.cfg.GridStep, d.cfg.MaxDisp)
	d.mu.Unlock()

	// Flips first so the fresh field perturbs the final geometry.
	polys := ann.Polygons
	if flipH {
		img = imaging.FlipH(img)
		polys = flipPolys(polys, func(p Polygon) Polygon { return p.FlipH(float64(w)) })
	}
	if flipV {
		img = imaging.FlipV(img)
		polys = flipPolys(polys, func(p Polygon) Polygon { return p.FlipV(float64(h)) })
	}
	if d.cfg.Augment {
		img = imaging.AdjustBrightness(img, brightness)
		img = imaging.AdjustContrast(img, contrast)
	}

	misaligned := make([]Polygon, len(polys))
	for i, p := range polys {
		misaligned[i] = field.Displace(p)
	}

	polyMap := Rasterize(misaligned, w, h)
	segMask := Rasterize(polys, w, h)

	// Dividing by -MaxDisp flips the perturbation into the normalized
	// correction the network should predict.
	return Sample{
		Image:   *ImageTensor(img),
		PolyMap: *MaskTensor(polyMap),
		Disp:    *field.Tensor(-d.cfg.MaxDisp),
		SegMask: *MaskTensor(segMask),
	}, nil
}

func flipPolys(polys []Polygon, flip func(Polygon) Polygon) []Polygon {
	out := make([]Polygon, len(polys))
	for i, p := range polys {
		out[i] = flip(p)
	}

	return out
}

// Batch stacks samples into batch tensors on the given device and frees
// the per-sample tensors.
func Batch(samples []Sample, device gotch.Device) (image, polyMap, disp, segMask *ts.Tensor) {
	var images, polyMaps, disps, segMasks []ts.Tensor
	for _, s := range samples {
		images = append(images, s.Image)
		polyMaps = append(polyMaps, s.PolyMap)
		disps = append(disps, s.Disp)
		segMasks = append(segMasks, s.SegMask)
	}

	image = ts.MustStack(images, 0).MustTo(device, true)
	polyMap = ts.MustStack(polyMaps, 0).MustTo(device, true)
	disp = ts.MustStack(disps, 0).MustTo(device, true)
	segMask = ts.MustStack(segMasks, 0).MustTo(device, true)

	for _, s := range samples {
		s.MustDrop()
	}

	return image, polyMap, disp, segMask
}
