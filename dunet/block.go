package dunet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/base"
)

// ConvBlock is a run of 3x3 valid convolutions, each followed by batch
// norm and ELU, optionally closed by a 2x2 stride-2 max pool. It is the
// building unit of the encoder branches, the fusion stage and the decoder.
type ConvBlock struct {
	seq  *nn.SequentialT
	pool bool
}

// NewConvBlock creates a ConvBlock. filters holds the output channel count
// of each convolution in the run.
func NewConvBlock(p *nn.Path, cIn int64, filters []int64, pool bool) *ConvBlock {
	seq := nn.SeqT()
	last := cIn
	for i, f := range filters {
		seq.Add(base.ConvBnElu(p.Sub(fmt.Sprintf("conv%v", i)), last, f, 3, 0, 1))
		last = f
	}

	return &ConvBlock{seq: seq, pool: pool}
}

// ForwardT computes the block features and, for pooling blocks, the pooled
// tensor fed to the next level. pooled is nil for non-pooling blocks. The
// caller owns both returned tensors.
func (b *ConvBlock) ForwardT(x *ts.Tensor, train bool) (feat, pooled *ts.Tensor) {
	feat = b.seq.ForwardT(x, train)
	if b.pool {
		pooled = feat.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
	}

	return feat, pooled
}
