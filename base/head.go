package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// NewPredictionHead creates a prediction head (nn.SequentialT): a ksize
// convolution projecting to cOut channels, followed by a final activation.
// A nil act leaves the raw scores untouched so callers can feed them to a
// logit-based loss.
func NewPredictionHead(p *nn.Path, cIn, cOut, ksize int64, act ActivationFn) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2d(p, cIn, cOut, ksize, 0, 1))
	if act != nil {
		seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return act(xs)
		}))
	}

	return seq
}
