package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ActivationFn applies an element-wise activation to a tensor. The
// returned tensor is always a new tensor; the input is left intact.
type ActivationFn func(xs *ts.Tensor) *ts.Tensor

// Elu is the exponential linear unit.
func Elu(xs *ts.Tensor) *ts.Tensor {
	return xs.MustElu(false)
}

// Relu is the rectified linear unit.
func Relu(xs *ts.Tensor) *ts.Tensor {
	return xs.MustRelu(false)
}

// Sigmoid squashes values to (0, 1).
func Sigmoid(xs *ts.Tensor) *ts.Tensor {
	return xs.MustSigmoid(false)
}

// Tanh squashes values to (-1, 1).
func Tanh(xs *ts.Tensor) *ts.Tensor {
	return xs.MustTanh(false)
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// ConvBnAct creates a SequentialT composing of Conv2D with no bias, a batch
// norm and an activation. The conv carries no bias because the batch norm
// right behind it has one.
func ConvBnAct(p *nn.Path, cIn, cOut, ksize, padding, stride int64, act ActivationFn) *nn.SequentialT {
	bnConfig := nn.DefaultBatchNormConfig()
	bnConfig.Eps = 0.001
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, bnConfig))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return act(xs)
	}))

	return seq
}

// ConvBnElu creates a Conv2D + BatchNorm + ELU unit.
func ConvBnElu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	return ConvBnAct(p, cIn, cOut, ksize, padding, stride, Elu)
}
