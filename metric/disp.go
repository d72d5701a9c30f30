package metric

import (
	"log"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// DispLoss computes the mean squared error between a predicted and a
// target displacement field, both shaped (batch, components, h, w). A
// non-nil weight tensor broadcastable over the fields reweights pixels,
// e.g. to focus the loss on polygon interiors; the result is normalized
// by the weight mass so it stays comparable across batches.
func DispLoss(pred, target, weight *ts.Tensor) *ts.Tensor {
	if weight == nil {
		// NOTE: reduction: none = 0; mean = 1; sum = 2
		return pred.MustMseLoss(target, 1, false)
	}

	diff := pred.MustSub(target, false)
	sq := diff.MustMul(diff, false)
	diff.MustDrop()

	num := sq.MustMul(weight, true).MustMean(gotch.Float, true)
	denom := weight.MustMean(gotch.Float, false).MustAdd1(ts.FloatScalar(eps), true)
	loss := num.MustDiv(denom, true)
	denom.MustDrop()

	return loss
}

// MultiLevelDispLoss averages DispLoss over the levels of a stacked
// displacement prediction shaped (batch, levels, components, h, w), all
// levels scored against the same target. levelWeights, when given,
// carries one weight per level; nil weights levels equally.
func MultiLevelDispLoss(stack, target, weight *ts.Tensor, levelWeights []float64) *ts.Tensor {
	levels := stack.MustSize()[1]
	if levelWeights != nil && int64(len(levelWeights)) != levels {
		log.Fatalf("Expected %v level weights. Got %v\n", levels, len(levelWeights))
	}

	var total *ts.Tensor
	var wSum float64
	for l := int64(0); l < levels; l++ {
		w := 1.0
		if levelWeights != nil {
			w = levelWeights[l]
		}
		wSum += w

		pred := stack.MustNarrow(1, l, 1, false).MustSqueeze1(1, true)
		loss := DispLoss(pred, target, weight).MustMul1(ts.FloatScalar(w), true)
		pred.MustDrop()
		if total == nil {
			total = loss
		} else {
			next := total.MustAdd(loss, true)
			loss.MustDrop()
			total = next
		}
	}

	return total.MustDiv1(ts.FloatScalar(wSum), true)
}

// MeanDispError returns the mean euclidean distance between predicted and
// target displacement vectors, in the units of the fields.
func MeanDispError(pred, target *ts.Tensor) float64 {
	diff := pred.MustSub(target, false)
	sq := diff.MustMul(diff, false)
	diff.MustDrop()

	// squared norm over the component dim
	norm := sq.MustSum1([]int64{1}, false, gotch.Double, true).MustSqrt(true)
	mean := norm.MustMean(gotch.Double, true)
	v := mean.Float64Values()[0]
	mean.MustDrop()

	return v
}
