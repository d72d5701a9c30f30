package dunet

import (
	"errors"
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/base"
)

var (
	// ErrShapeMismatch reports pyramids or channel layouts that cannot be
	// combined.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidConfig reports a Config the network cannot be built from.
	ErrInvalidConfig = errors.New("invalid model config")
)

// Config describes a DoubleUNet.
type Config struct {
	ImageChannels   int64 // image input channels
	PolyMapChannels int64 // polygon raster input channels
	ImageBase       int64 // level-0 channels of the image arm
	PolyMapBase     int64 // level-0 channels of the polygon arm
	CommonBase      int64 // level-0 channels of the fused pyramid
	PoolCount       int   // pooling stages per arm, at least 1
	DispChannels    int64 // displacement components per pixel
	AddSeg          bool  // attach the segmentation decoder
	SegChannels     int64 // segmentation classes, used when AddSeg is set
}

// DefaultConfig returns the configuration the training pipeline uses: an
// RGB image arm, a single-channel polygon arm, three pooling stages, 2d
// displacements and a single-class segmentation.
func DefaultConfig() Config {
	return Config{
		ImageChannels:   3,
		PolyMapChannels: 1,
		ImageBase:       16,
		PolyMapBase:     8,
		CommonBase:      32,
		PoolCount:       3,
		DispChannels:    2,
		AddSeg:          true,
		SegChannels:     1,
	}
}

func (c Config) validate() error {
	if c.ImageChannels < 1 {
		return fmt.Errorf("%w: image channels %v", ErrInvalidConfig, c.ImageChannels)
	}
	if c.PolyMapChannels < 1 {
		return fmt.Errorf("%w: poly map channels %v", ErrInvalidConfig, c.PolyMapChannels)
	}
	if c.ImageBase < 1 || c.PolyMapBase < 1 || c.CommonBase < 1 {
		return fmt.Errorf("%w: base feature counts %v/%v/%v", ErrInvalidConfig, c.ImageBase, c.PolyMapBase, c.CommonBase)
	}
	if c.PoolCount < 1 {
		return fmt.Errorf("%w: pool count %v", ErrInvalidConfig, c.PoolCount)
	}
	if c.DispChannels < 1 {
		return fmt.Errorf("%w: displacement channels %v", ErrInvalidConfig, c.DispChannels)
	}
	if c.AddSeg && c.SegChannels < 1 {
		return fmt.Errorf("%w: segmentation channels %v", ErrInvalidConfig, c.SegChannels)
	}

	return nil
}

// Output is the result of a DoubleUNet forward pass. Displacement returns
// the level-0 field and the per-level stack shaped
// (batch, levels, disp, h0, w0). An Output owns its tensors until
// MustDrop is called.
type Output interface {
	Displacement() (level0, stacked *ts.Tensor)
	MustDrop()
}

// DispOutput is the output of a displacement-only network.
type DispOutput struct {
	Disp      *ts.Tensor
	DispStack *ts.Tensor
}

// Displacement returns the level-0 field and the per-level stack.
func (o *DispOutput) Displacement() (level0, stacked *ts.Tensor) {
	return o.Disp, o.DispStack
}

// MustDrop frees the output tensors.
func (o *DispOutput) MustDrop() {
	o.Disp.MustDrop()
	o.DispStack.MustDrop()
}

// DispSegOutput is the output of a network with the segmentation decoder
// attached.
type DispSegOutput struct {
	DispOutput
	SegProb  *ts.Tensor // level-0 probabilities
	SegStack *ts.Tensor // per-level logits
}

// Segmentation returns the level-0 probabilities and the per-level logit
// stack shaped (batch, levels, classes, h0, w0).
func (o *DispSegOutput) Segmentation() (prob, logitStack *ts.Tensor) {
	return o.SegProb, o.SegStack
}

// MustDrop frees the output tensors.
func (o *DispSegOutput) MustDrop() {
	o.DispOutput.MustDrop()
	o.SegProb.MustDrop()
	o.SegStack.MustDrop()
}

// DoubleUNet aligns polygon rasters to imagery. Two encoder arms read the
// image and the polygon map, a fusion stage joins them level by level, and
// one decoder per output predicts per-pixel displacements and, when
// configured, a segmentation.
type DoubleUNet struct {
	config     Config
	imageArm   *InputBranch
	polyMapArm *InputBranch
	fusion     *Fusion
	dispDec    *Decoder
	dispHead   *PredHead
	segDec     *Decoder
	segHead    *PredHead
}

// NewDoubleUNet builds a DoubleUNet under the given variable path.
func NewDoubleUNet(p *nn.Path, config Config) (*DoubleUNet, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	depth := config.PoolCount + 1
	imageArm := NewInputBranch(p.Sub("branch_image"), config.ImageChannels, config.ImageBase, config.PoolCount)
	polyMapArm := NewInputBranch(p.Sub("branch_poly_map"), config.PolyMapChannels, config.PolyMapBase, config.PoolCount)

	fusion, err := NewFusion(p.Sub("common_part"),
		FeatureCounts(config.ImageBase, depth),
		FeatureCounts(config.PolyMapBase, depth),
		config.CommonBase)
	if err != nil {
		return nil, err
	}

	decChannels := FeatureCounts(config.CommonBase, config.PoolCount)
	net := &DoubleUNet{
		config:     config,
		imageArm:   imageArm,
		polyMapArm: polyMapArm,
		fusion:     fusion,
		dispDec:    NewDecoder(p.Sub("branch_disp"), config.CommonBase, config.PoolCount),
		dispHead:   NewPredHead(p.Sub("pred_disp"), decChannels, config.DispChannels, base.Tanh),
	}
	if config.AddSeg {
		net.segDec = NewDecoder(p.Sub("branch_seg"), config.CommonBase, config.PoolCount)
		net.segHead = NewPredHead(p.Sub("pred_seg_logit"), decChannels, config.SegChannels, nil)
	}

	return net, nil
}

// Config returns the configuration the network was built with.
func (n *DoubleUNet) Config() Config {
	return n.config
}

// ForwardT runs the network over an image and a polygon raster, both NCHW
// tensors on the same grid. The result is a *DispOutput, or a
// *DispSegOutput when the segmentation decoder is attached. The input
// tensors are left to the caller.
func (n *DoubleUNet) ForwardT(image, polyMap *ts.Tensor, train bool) Output {
	imageFeats := n.imageArm.ForwardT(image, train)    // level i: (N, imageBase<<i, ei, ei)
	polyFeats := n.polyMapArm.ForwardT(polyMap, train) // level i: (N, polyMapBase<<i, ei, ei)

	fused, err := n.fusion.ForwardT(imageFeats, polyFeats, train)
	dropAll(imageFeats)
	dropAll(polyFeats)
	if err != nil {
		log.Fatal(err)
	}

	dispLevels := n.dispDec.ForwardT(fused, train) // level i: (N, commonBase<<i, di, di)
	disp, dispStack := n.dispHead.ForwardT(dispLevels, train)
	dropAll(dispLevels)

	if n.segDec == nil {
		dropAll(fused)
		return &DispOutput{Disp: disp, DispStack: dispStack}
	}

	segLevels := n.segDec.ForwardT(fused, train)
	dropAll(fused)
	segLogit, segStack := n.segHead.ForwardT(segLevels, train)
	dropAll(segLevels)
	segProb := segLogit.MustSigmoid(true)

	return &DispSegOutput{
		DispOutput: DispOutput{Disp: disp, DispStack: dispStack},
		SegProb:    segProb,
		SegStack:   segStack,
	}
}

func dropAll(xs []*ts.Tensor) {
	for _, x := range xs {
		x.MustDrop()
	}
}
