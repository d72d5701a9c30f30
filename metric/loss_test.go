package metric_test

import (
	"math"
	"testing"

	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/metric"
)

func almostEqual(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestDiceCoeff(t *testing.T) {
	pslice := []int64{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred := ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target := ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)

	// overlap 3, pred 3, target 4: 2*3/7 = 0.8571
	dice := metric.DiceCoeff(pred, target)
	if !almostEqual(dice, 0.8571, 1e-4) {
		t.Errorf("Dice coeff: expected 0.8571, got %0.4f", dice)
	}

	pred.MustDrop()
	target.MustDrop()
}

func TestIoU(t *testing.T) {
	pslice := []int64{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred := ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target := ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)

	// overlap 3, union 4
	iou := metric.IoU(pred, target)
	if !almostEqual(iou, 0.7500, 1e-4) {
		t.Errorf("IoU: expected 0.7500, got %0.4f", iou)
	}

	pred.MustDrop()
	target.MustDrop()
}

func TestJaccardIndex(t *testing.T) {
	pslice := []int64{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred := ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target := ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)

	// class 0: 5/6, class 1: 3/4
	iou := metric.JaccardIndex(pred, target, 2)
	if !almostEqual(iou, 0.7917, 1e-4) {
		t.Errorf("Jaccard index: expected 0.7917, got %0.4f", iou)
	}

	pred.MustDrop()
	target.MustDrop()
}

func TestBCEWithLogitsLoss(t *testing.T) {
	logit := ts.MustOfSlice([]float64{0, 0}).MustView([]int64{1, 1, 1, 2}, true)
	target := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 1, 2}, true)

	// zero logits score ln(2) against any binary target
	loss := metric.BCEWithLogitsLoss(logit, target)
	if got := loss.Float64Values()[0]; !almostEqual(got, math.Ln2, 1e-6) {
		t.Errorf("BCE loss: expected %0.6f, got %0.6f", math.Ln2, got)
	}

	loss.MustDrop()
	logit.MustDrop()
	target.MustDrop()
}

func TestSoftDiceLoss(t *testing.T) {
	prob := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 1, 2}, true)
	same := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 1, 2}, true)
	inverse := ts.MustOfSlice([]float64{0, 1}).MustView([]int64{1, 1, 1, 2}, true)

	loss := metric.SoftDiceLoss(prob, same)
	if got := loss.Float64Values()[0]; !almostEqual(got, 0, 1e-6) {
		t.Errorf("Dice loss at perfect overlap: expected 0, got %0.6f", got)
	}
	loss.MustDrop()

	// tp 0, fp 1, fn 1: 1 - 1/3
	loss = metric.SoftDiceLoss(prob, inverse)
	if got := loss.Float64Values()[0]; !almostEqual(got, 2.0/3.0, 1e-6) {
		t.Errorf("Dice loss at zero overlap: expected %0.6f, got %0.6f", 2.0/3.0, got)
	}
	loss.MustDrop()

	prob.MustDrop()
	same.MustDrop()
	inverse.MustDrop()
}

func TestSegLoss(t *testing.T) {
	logit := ts.MustOfSlice([]float64{0}).MustView([]int64{1, 1, 1, 1}, true)
	target := ts.MustOfSlice([]float64{1}).MustView([]int64{1, 1, 1, 1}, true)

	// 0.8*ln(2) + 0.2*(1 - 2/2.5)
	want := 0.8*math.Ln2 + 0.04
	loss := metric.SegLoss(logit, target)
	if got := loss.Float64Values()[0]; !almostEqual(got, want, 1e-6) {
		t.Errorf("Seg loss: expected %0.6f, got %0.6f", want, got)
	}

	loss.MustDrop()
	logit.MustDrop()
	target.MustDrop()
}

func TestMultiLevelSegLoss(t *testing.T) {
	level := ts.MustOfSlice([]float64{2, -2}).MustView([]int64{1, 1, 1, 2}, true)
	target := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 1, 2}, true)
	stack := ts.MustStack([]ts.Tensor{*level, *level}, 1)

	single := metric.SegLoss(level, target)
	want := single.Float64Values()[0]
	single.MustDrop()

	// identical levels average to the single level loss
	loss := metric.MultiLevelSegLoss(stack, target, nil)
	if got := loss.Float64Values()[0]; !almostEqual(got, want, 1e-6) {
		t.Errorf("Multi level seg loss: expected %0.6f, got %0.6f", want, got)
	}
	loss.MustDrop()

	loss = metric.MultiLevelSegLoss(stack, target, []float64{1, 0})
	if got := loss.Float64Values()[0]; !almostEqual(got, want, 1e-6) {
		t.Errorf("Weighted multi level seg loss: expected %0.6f, got %0.6f", want, got)
	}
	loss.MustDrop()

	stack.MustDrop()
	level.MustDrop()
	target.MustDrop()
}

func TestAccuracy(t *testing.T) {
	pslice := []int64{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred := ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target := ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)

	tp, tn := metric.Accuracy(pred, target)
	if !almostEqual(tp, 0.75, 1e-4) {
		t.Errorf("True positive rate: expected 0.7500, got %0.4f", tp)
	}
	if !almostEqual(tn, 1.0, 1e-4) {
		t.Errorf("True negative rate: expected 1.0000, got %0.4f", tn)
	}

	pred.MustDrop()
	target.MustDrop()
}
