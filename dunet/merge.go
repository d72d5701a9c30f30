package dunet

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/base"
)

// CropOrPad center-crops or zero-pads x along its last two dimensions to
// h x w. Each dimension is handled independently, so a tensor can be
// cropped in one dimension and padded in the other. Odd differences put
// the extra pixel on the bottom/right, matching the padding split below.
func CropOrPad(x *ts.Tensor, h, w int64, del bool) *ts.Tensor {
	size := x.MustSize()
	n := len(size)
	curH := size[n-2]
	curW := size[n-1]

	out := x.MustShallowClone()
	if del {
		x.MustDrop()
	}

	if curH > h {
		out = out.MustNarrow(int64(n-2), (curH-h)/2, h, true)
	}
	if curW > w {
		out = out.MustNarrow(int64(n-1), (curW-w)/2, w, true)
	}

	padH := h - curH
	padW := w - curW
	if padH > 0 || padW > 0 {
		if padH < 0 {
			padH = 0
		}
		if padW < 0 {
			padW = 0
		}
		pad := []int64{padW / 2, padW - padW/2, padH / 2, padH - padH/2}
		out = out.MustConstantPadNd(pad, true)
	}

	return out
}

// UpsampleCrop upsamples x bilinearly by an integer factor, then
// center-crops or zero-pads the result to h x w.
func UpsampleCrop(x *ts.Tensor, factor, h, w int64, del bool) *ts.Tensor {
	size := x.MustSize()
	n := len(size)
	outSize := []int64{size[n-2] * factor, size[n-1] * factor}

	up := x.MustUpsampleBilinear2d(outSize, false, nil, nil, del)

	return CropOrPad(up, h, w, true)
}

// UpsampleMerge lifts a coarse tensor onto the grid of the skip tensor one
// level up and concatenates the two along the channel dimension. The
// upsampled tensor is first projected to the skip's channel count by a
// 3x3 same convolution, so the merged tensor carries twice the skip
// channels.
type UpsampleMerge struct {
	proj  *nn.SequentialT
	scale int64
}

// NewUpsampleMerge creates an UpsampleMerge projecting cIn upsampled
// channels onto cSkip channels. scaleOpt overrides the upsampling factor
// of 2.
func NewUpsampleMerge(p *nn.Path, cIn, cSkip int64, scaleOpt ...int64) *UpsampleMerge {
	var scale int64 = 2
	if len(scaleOpt) > 0 {
		scale = scaleOpt[0]
	}

	return &UpsampleMerge{
		proj:  base.ConvBnElu(p.Sub("proj"), cIn, cSkip, 3, 1, 1),
		scale: scale,
	}
}

// ForwardT upsamples x, projects it, aligns skip to the upsampled grid by
// center crop or zero pad, and concatenates both along channels. Both
// input tensors are left to the caller.
func (m *UpsampleMerge) ForwardT(x, skip *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize()
	n := len(size)
	outSize := []int64{size[n-2] * m.scale, size[n-1] * m.scale}

	up := x.MustUpsampleBilinear2d(outSize, false, nil, nil, false)
	proj := m.proj.ForwardT(up, train)
	up.MustDrop()

	aligned := CropOrPad(skip, outSize[0], outSize[1], false)
	merged := ts.MustCat([]ts.Tensor{*proj, *aligned}, 1)
	proj.MustDrop()
	aligned.MustDrop()

	return merged
}
