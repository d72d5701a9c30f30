package dunet_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/mapalign/dunet"
)

func TestEncoderSizes(t *testing.T) {
	// 256 - 4 = 252, pool 126, 126 - 4 = 122, pool 61, 61 - 4 = 57
	got := dunet.EncoderSizes(256, 2)
	want := []int64{252, 122, 57}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encoder sizes: expected %v, got %v", want, got)
	}

	// no pooling stage: single level
	got = dunet.EncoderSizes(256, 0)
	want = []int64{252}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encoder sizes: expected %v, got %v", want, got)
	}
}

func TestFusionSizes(t *testing.T) {
	// one more conv pair per level: 252 - 4 = 248, 122 - 4 = 118, 57 - 4 = 53
	got := dunet.FusionSizes(256, 2)
	want := []int64{248, 118, 53}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Fusion sizes: expected %v, got %v", want, got)
	}
}

func TestDecoderSizes(t *testing.T) {
	// seed 53: level 1 = 53*2 - 4 = 102, level 0 = 102*2 - 4 = 200
	got := dunet.DecoderSizes(256, 2)
	want := []int64{200, 102}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decoder sizes: expected %v, got %v", want, got)
	}
}

func TestOutputSize(t *testing.T) {
	if got := dunet.OutputSize(256, 2); got != 200 {
		t.Errorf("Output size: expected 200, got %v", got)
	}

	// 256 -> E 252/122/57/24, F 248/118/53/20, D 36 -> 68 -> 132
	if got := dunet.OutputSize(256, 3); got != 132 {
		t.Errorf("Output size: expected 132, got %v", got)
	}
}

func TestValidInputSize(t *testing.T) {
	if !dunet.ValidInputSize(256, 3) {
		t.Error("Expected 256 to be a valid input for 3 pools")
	}

	// 59: E 55/23/7, F 3 at the coarsest level, D 2 then 0
	if dunet.ValidInputSize(59, 2) {
		t.Error("Expected 59 to be rejected for 2 pools")
	}

	// 60: E 56/24/8, F 52/20/4, D 4 then 4
	if !dunet.ValidInputSize(60, 2) {
		t.Error("Expected 60 to be accepted for 2 pools")
	}
}

func TestMinInputSize(t *testing.T) {
	sizes := map[int]int64{0: 9, 1: 26, 2: 60}
	for poolCount, want := range sizes {
		got := dunet.MinInputSize(poolCount)
		if got != want {
			t.Errorf("Min input size for %v pools: expected %v, got %v", poolCount, want, got)
		}
		if !dunet.ValidInputSize(got, poolCount) {
			t.Errorf("Expected min input size %v to be valid for %v pools", got, poolCount)
		}
		if dunet.ValidInputSize(got-1, poolCount) {
			t.Errorf("Expected %v to be rejected for %v pools", got-1, poolCount)
		}
	}
}

func TestFeatureCounts(t *testing.T) {
	got := dunet.FeatureCounts(8, 4)
	want := []int64{8, 16, 32, 64}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Feature counts: expected %v, got %v", want, got)
	}
}
