package dunet

// Every convolution in the network is a 3x3 valid convolution, so each one
// trims a pixel off every border, and every pooling stage halves the grid.
// The helpers here mirror that arithmetic exactly, which lets callers size
// inputs, crop training targets and validate configurations without
// running the network.

const (
	convsPerBlock = 2 // valid convolutions per block
	convTrim      = 2 // pixels lost per 3x3 valid convolution
)

// blockOut returns the spatial size after one block of valid convolutions.
func blockOut(size int64) int64 {
	return size - convsPerBlock*convTrim
}

// poolOut returns the spatial size after a 2x2 stride-2 max pool.
func poolOut(size int64) int64 {
	return size / 2
}

// FeatureCount returns the channel count at a pyramid level for a given
// base count. Channels double at every level.
func FeatureCount(base int64, level int) int64 {
	return base << uint(level)
}

// FeatureCounts returns the channel counts for levels 0..levels-1.
func FeatureCounts(base int64, levels int) []int64 {
	counts := make([]int64, levels)
	for i := range counts {
		counts[i] = FeatureCount(base, i)
	}

	return counts
}

// EncoderSizes returns the spatial size of the feature tensor produced at
// each of the poolCount+1 encoder levels for a square input of the given
// size. Level i+1 operates on the pooled size of level i; the last level
// is not pooled.
func EncoderSizes(input int64, poolCount int) []int64 {
	sizes := make([]int64, poolCount+1)
	size := input
	for i := 0; i <= poolCount; i++ {
		size = blockOut(size)
		sizes[i] = size
		if i < poolCount {
			size = poolOut(size)
		}
	}

	return sizes
}

// FusionSizes returns the spatial size of the fused feature tensor at each
// level. Fusion runs one more block of valid convolutions over the
// concatenated encoder features.
func FusionSizes(input int64, poolCount int) []int64 {
	sizes := EncoderSizes(input, poolCount)
	for i, s := range sizes {
		sizes[i] = blockOut(s)
	}

	return sizes
}

// DecoderSizes returns the spatial sizes of the decoder outputs, finest
// first. The coarsest fused level only seeds the walk, so a decoder over
// poolCount+1 levels produces poolCount outputs. poolCount must be at
// least 1.
func DecoderSizes(input int64, poolCount int) []int64 {
	fused := FusionSizes(input, poolCount)
	sizes := make([]int64, poolCount)
	size := fused[poolCount]
	for i := poolCount - 1; i >= 0; i-- {
		size = blockOut(size * 2)
		sizes[i] = size
	}

	return sizes
}

// OutputSize returns the spatial size of the level-0 prediction, the
// resolution every coarser prediction is upsampled to. poolCount must be
// at least 1.
func OutputSize(input int64, poolCount int) int64 {
	return DecoderSizes(input, poolCount)[0]
}

// ValidInputSize reports whether a square input of the given size keeps
// every intermediate tensor of the network at least one pixel wide.
func ValidInputSize(input int64, poolCount int) bool {
	for _, s := range EncoderSizes(input, poolCount) {
		if s < 1 {
			return false
		}
	}
	for _, s := range FusionSizes(input, poolCount) {
		if s < 1 {
			return false
		}
	}
	if poolCount > 0 {
		for _, s := range DecoderSizes(input, poolCount) {
			if s < 1 {
				return false
			}
		}
	}

	return true
}

// MinInputSize returns the smallest square input size the network accepts
// for the given pool count. Every size helper is monotonic in the input,
// so the first valid size is the minimum.
func MinInputSize(poolCount int) int64 {
	for size := int64(1); ; size++ {
		if ValidInputSize(size, poolCount) {
			return size
		}
	}
}
