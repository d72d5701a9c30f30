package dunet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/base"
)

// PredHead turns a pyramid of decoder tensors into per-level predictions.
// Each level gets its own 1x1 convolution; all levels share the final
// activation. Level 0 sets the reference resolution and every coarser
// level i is upsampled by 2^i and center-cropped or padded onto that grid.
type PredHead struct {
	heads []*nn.SequentialT
}

// NewPredHead creates a PredHead over a pyramid with the given per-level
// channel counts, projecting every level to cOut channels. A nil act
// keeps raw scores.
func NewPredHead(p *nn.Path, cIns []int64, cOut int64, act base.ActivationFn) *PredHead {
	heads := make([]*nn.SequentialT, len(cIns))
	for i, cIn := range cIns {
		heads[i] = base.NewPredictionHead(p.Sub(fmt.Sprintf("level%v", i)), cIn, cOut, 1, act)
	}

	return &PredHead{heads}
}

// ForwardT predicts at every pyramid level. It returns the level-0
// prediction and all levels stacked along dimension 1, shaped
// (batch, levels, cOut, h0, w0). The caller owns both returned tensors.
func (h *PredHead) ForwardT(levels []*ts.Tensor, train bool) (level0, stacked *ts.Tensor) {
	if len(levels) != len(h.heads) {
		log.Fatalf("Expected pyramid of %v tensors. Got %v\n", len(h.heads), len(levels))
	}

	level0 = h.heads[0].ForwardT(levels[0], train)
	size := level0.MustSize()
	h0 := size[len(size)-2]
	w0 := size[len(size)-1]

	preds := make([]ts.Tensor, len(levels))
	preds[0] = *level0.MustShallowClone()
	for i := 1; i < len(levels); i++ {
		pred := h.heads[i].ForwardT(levels[i], train)
		preds[i] = *UpsampleCrop(pred, 1<<uint(i), h0, w0, true)
	}

	stacked = ts.MustStack(preds, 1)
	for _, pred := range preds {
		pred.MustDrop()
	}

	return level0, stacked
}
