package metric

import (
	"log"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

const eps = 1e-8

// BCEWithLogitsLoss computes the mean binary cross entropy between logits
// and targets.
func BCEWithLogitsLoss(logit, target *ts.Tensor) *ts.Tensor {
	logitR := logit.MustReshape([]int64{-1}, false)
	targetR := target.MustReshape([]int64{-1}, false)

	// NOTE: reduction: none = 0; mean = 1; sum = 2
	// ref. https://pytorch.org/docs/master/nn.functional.html#torch.nn.functional.binary_cross_entropy_with_logits
	retVal := logitR.MustBinaryCrossEntropyWithLogits(targetR, ts.NewTensor(), ts.NewTensor(), 1, true)
	targetR.MustDrop()

	return retVal
}

// SoftDiceLoss computes 1 - dice over probabilities, per channel with the
// spatial dims reduced, averaged across batch and channels.
// Ref. https://gist.github.com/jeremyjordan/9ea3032a32909f71dd2ab35fe3bacc08
func SoftDiceLoss(prob, target *ts.Tensor) *ts.Tensor {
	dims := []int64{-2, -1}
	smooth := 1.0

	xy := prob.MustMul(target, false)
	tp := xy.MustSum1(dims, false, gotch.Float, true)

	// (1-target)*prob
	y1 := target.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	fp := y1.MustMul(prob, true).MustSum1(dims, false, gotch.Float, true)

	// (1-prob)*target
	x1 := prob.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	fn := x1.MustMul(target, true).MustSum1(dims, false, gotch.Float, true)

	numerator := tp.MustMul1(ts.FloatScalar(2.0), true).MustAdd1(ts.FloatScalar(smooth), true)
	denominator := numerator.MustAdd(fp, false).MustAdd(fn, true)
	fp.MustDrop()
	fn.MustDrop()

	dc := numerator.MustDiv(denominator, true)
	denominator.MustDrop()

	mean := dc.MustMean(gotch.Float, true)

	return mean.MustMul1(ts.FloatScalar(-1), true).MustAdd1(ts.FloatScalar(1), true)
}

// SegLoss combines binary cross entropy over logits with soft dice over
// the corresponding probabilities, weighted 0.8/0.2.
func SegLoss(logit, target *ts.Tensor) *ts.Tensor {
	bce := BCEWithLogitsLoss(logit, target).MustMul1(ts.FloatScalar(0.8), true)
	prob := logit.MustSigmoid(false)
	dice := SoftDiceLoss(prob, target).MustMul1(ts.FloatScalar(0.2), true)
	prob.MustDrop()

	loss := bce.MustAdd(dice, true)
	dice.MustDrop()

	return loss
}

// MultiLevelSegLoss averages SegLoss over the levels of a stacked logit
// prediction shaped (batch, levels, classes, h, w), all levels scored
// against the same target. levelWeights, when given, carries one weight
// per level; nil weights levels equally.
func MultiLevelSegLoss(stack, target *ts.Tensor, levelWeights []float64) *ts.Tensor {
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
		loss := SegLoss(pred, target).MustMul1(ts.FloatScalar(w), true)
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

// DiceCoeff measures overlap between a prediction and a target, both
// binarized at 0.5. Perfect overlap scores 1.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	p := pred.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)
	t := target.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)

	pt := p.MustMul(t, false)
	overlap := sumValue(pt)
	pSum := sumValue(p)
	tSum := sumValue(t)

	return (2 * overlap) / (pSum + tSum + eps)
}

// DiceCoeffBatch averages DiceCoeff over the samples of a batch.
func DiceCoeffBatch(pred, target *ts.Tensor) float64 {
	n := pred.MustSize()[0]
	var sum float64
	for i := int64(0); i < n; i++ {
		p := pred.MustNarrow(0, i, 1, false)
		t := target.MustNarrow(0, i, 1, false)
		sum += DiceCoeff(p, t)
		p.MustDrop()
		t.MustDrop()
	}

	return sum / float64(n)
}

// IoU measures intersection over union between a prediction and a target,
// both binarized at 0.5.
func IoU(pred, target *ts.Tensor) float64 {
	p := pred.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)
	t := target.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)

	pt := p.MustMul(t, false)
	overlap := sumValue(pt)
	pSum := sumValue(p)
	tSum := sumValue(t)

	return overlap / (pSum + tSum - overlap + eps)
}

// JaccardIndex averages per-class IoU over nclasses discrete classes.
func JaccardIndex(pred, target *ts.Tensor, nclasses int64) float64 {
	var sum float64
	for c := int64(0); c < nclasses; c++ {
		p := pred.MustReshape([]int64{-1}, false).MustEq(ts.IntScalar(c), true).MustTotype(gotch.Double, true)
		t := target.MustReshape([]int64{-1}, false).MustEq(ts.IntScalar(c), true).MustTotype(gotch.Double, true)

		pt := p.MustMul(t, false)
		overlap := sumValue(pt)
		pSum := sumValue(p)
		tSum := sumValue(t)
		sum += overlap / (pSum + tSum - overlap + eps)
	}

	return sum / float64(nclasses)
}

// Accuracy returns the true positive and true negative rates of a
// prediction and target, both binarized at 0.5.
func Accuracy(pred, target *ts.Tensor) (tp, tn float64) {
	p := pred.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)
	t := target.MustReshape([]int64{-1}, false).MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)

	p1 := p.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	t1 := t.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)

	pt := p.MustMul(t, false)
	p1t1 := p1.MustMul(t1, false)

	overlap := sumValue(pt)
	negOverlap := sumValue(p1t1)
	tSum := sumValue(t)
	t1Sum := sumValue(t1)
	p.MustDrop()
	p1.MustDrop()

	return overlap / (tSum + eps), negOverlap / (t1Sum + eps)
}

// sumValue reduces a tensor to the scalar sum of its elements, dropping
// the input.
func sumValue(x *ts.Tensor) float64 {
	sum := x.MustSum(gotch.Double, true)
	v := sum.Float64Values()[0]
	sum.MustDrop()

	return v
}
