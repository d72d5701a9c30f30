package dunet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// InputBranch is one encoder arm of the network: poolCount+1 ConvBlocks
// with channel counts doubling level by level. Every block except the
// coarsest pools its features down to the next level.
type InputBranch struct {
	blocks []*ConvBlock
}

// NewInputBranch creates an InputBranch over cIn input channels producing
// FeatureCount(base, i) channels at level i.
func NewInputBranch(p *nn.Path, cIn, base int64, poolCount int) *InputBranch {
	blocks := make([]*ConvBlock, poolCount+1)
	last := cIn
	for i := range blocks {
		f := FeatureCount(base, i)
		blocks[i] = NewConvBlock(p.Sub(fmt.Sprintf("level%v", i)), last, []int64{f, f}, i < poolCount)
		last = f
	}

	return &InputBranch{blocks}
}

// Depth returns the number of pyramid levels the branch produces.
func (b *InputBranch) Depth() int {
	return len(b.blocks)
}

// ForwardT returns the feature tensor of every level, finest first. The
// caller owns the returned tensors.
func (b *InputBranch) ForwardT(x *ts.Tensor, train bool) []*ts.Tensor {
	feats := make([]*ts.Tensor, len(b.blocks))
	cur := x
	for i, blk := range b.blocks {
		feat, pooled := blk.ForwardT(cur, train)
		if cur != x {
			cur.MustDrop()
		}
		feats[i] = feat
		cur = pooled
	}

	return feats
}

// Fusion joins the two encoder arms level by level: the feature tensors of
// both arms are concatenated along channels and refined by one non-pooling
// ConvBlock per level.
type Fusion struct {
	blocks []*ConvBlock
}

// NewFusion creates a Fusion producing FeatureCount(base, i) channels at
// level i. cInA and cInB hold the per-level channel counts of the two
// arms and must have the same depth.
func NewFusion(p *nn.Path, cInA, cInB []int64, base int64) (*Fusion, error) {
	if len(cInA) != len(cInB) {
		return nil, fmt.Errorf("%w: fusing arms of depth %v and %v", ErrShapeMismatch, len(cInA), len(cInB))
	}

	blocks := make([]*ConvBlock, len(cInA))
	for i := range blocks {
		f := FeatureCount(base, i)
		blocks[i] = NewConvBlock(p.Sub(fmt.Sprintf("level%v", i)), cInA[i]+cInB[i], []int64{f, f}, false)
	}

	return &Fusion{blocks}, nil
}

// ForwardT fuses the per-level features of the two arms. It fails with an
// error wrapping ErrShapeMismatch when the pyramids disagree on depth.
// The input tensors are left to the caller; the caller owns the returned
// tensors.
func (f *Fusion) ForwardT(a, b []*ts.Tensor, train bool) ([]*ts.Tensor, error) {
	if len(a) != len(b) || len(a) != len(f.blocks) {
		return nil, fmt.Errorf("%w: fusing pyramids of depth %v and %v over %v levels", ErrShapeMismatch, len(a), len(b), len(f.blocks))
	}

	fused := make([]*ts.Tensor, len(a))
	for i := range a {
		cat := ts.MustCat([]ts.Tensor{*a[i], *b[i]}, 1)
		feat, _ := f.blocks[i].ForwardT(cat, train)
		cat.MustDrop()
		fused[i] = feat
	}

	return fused, nil
}

// Decoder walks a fused pyramid from the coarsest level to the finest. The
// coarsest tensor seeds the walk and is not an output; at every finer
// level the running tensor is merged with the skip features and refined by
// a non-pooling ConvBlock. A decoder over poolCount+1 levels therefore
// emits poolCount tensors.
type Decoder struct {
	merges []*UpsampleMerge
	blocks []*ConvBlock
}

// NewDecoder creates a Decoder over poolCount+1 levels with
// FeatureCount(base, i) skip channels at level i.
func NewDecoder(p *nn.Path, base int64, poolCount int) *Decoder {
	merges := make([]*UpsampleMerge, poolCount)
	blocks := make([]*ConvBlock, poolCount)
	for i := 0; i < poolCount; i++ {
		f := FeatureCount(base, i)
		sub := p.Sub(fmt.Sprintf("level%v", i))
		merges[i] = NewUpsampleMerge(sub.Sub("merge"), FeatureCount(base, i+1), f)
		blocks[i] = NewConvBlock(sub.Sub("refine"), 2*f, []int64{f, f}, false)
	}

	return &Decoder{merges: merges, blocks: blocks}
}

// ForwardT decodes a fused pyramid and returns the per-level outputs,
// finest first. The input tensors are left to the caller; the caller owns
// the returned tensors.
func (d *Decoder) ForwardT(fused []*ts.Tensor, train bool) []*ts.Tensor {
	if len(fused) != len(d.blocks)+1 {
		log.Fatalf("Expected fused pyramid of %v tensors. Got %v\n", len(d.blocks)+1, len(fused))
	}

	outs := make([]*ts.Tensor, len(d.blocks))
	cur := fused[len(fused)-1]
	for i := len(d.blocks) - 1; i >= 0; i-- {
		merged := d.merges[i].ForwardT(cur, fused[i], train)
		out, _ := d.blocks[i].ForwardT(merged, train)
		merged.MustDrop()
		outs[i] = out
		cur = out
	}

	return outs
}
