package dutil_test

import (
	"reflect"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/mapalign/dutil"
)

// squares is a toy dataset yielding idx*idx.
type squares struct {
	n int
}

func (d squares) Item(idx int) (interface{}, error) {
	return idx * idx, nil
}

func (d squares) Len() int {
	return d.n
}

func (d squares) DType() reflect.Type {
	return reflect.TypeOf(int(0))
}

func TestNewBatchSampler(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		batchSize int
		wantErr   bool
	}{
		{name: "valid", n: 10, batchSize: 3, wantErr: false},
		{name: "empty", n: 0, batchSize: 1, wantErr: true},
		{name: "zero batch", n: 10, batchSize: 0, wantErr: true},
		{name: "batch larger than set", n: 2, batchSize: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dutil.NewBatchSampler(tt.n, tt.batchSize, false, false)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBatchSamplerSample(t *testing.T) {
	s, err := dutil.NewBatchSampler(5, 2, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, s.Sample())

	shuffled, err := dutil.NewBatchSampler(5, 2, false, true)
	require.NoError(t, err)
	got := shuffled.Sample()
	sort.Ints(got)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestDataLoader(t *testing.T) {
	s, err := dutil.NewBatchSampler(5, 2, false, false)
	require.NoError(t, err)
	dl, err := dutil.NewDataLoader(squares{n: 5}, s)
	require.NoError(t, err)

	var batches [][]int
	for dl.HasNext() {
		b, err := dl.Next()
		require.NoError(t, err)
		batches = append(batches, b.([]int))
	}
	assert.Equal(t, [][]int{{0, 1}, {4, 9}, {16}}, batches)

	_, err = dl.Next()
	assert.Error(t, err)

	// a reset restarts the epoch
	dl.Reset()
	require.True(t, dl.HasNext())
	b, err := dl.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, b.([]int))
}

func TestDataLoaderDropLast(t *testing.T) {
	s, err := dutil.NewBatchSampler(5, 2, true, false)
	require.NoError(t, err)
	dl, err := dutil.NewDataLoader(squares{n: 5}, s)
	require.NoError(t, err)

	var count int
	for dl.HasNext() {
		b, err := dl.Next()
		require.NoError(t, err)
		assert.Len(t, b.([]int), 2)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestDataLoaderShuffle(t *testing.T) {
	s, err := dutil.NewBatchSampler(5, 2, false, true)
	require.NoError(t, err)
	dl, err := dutil.NewDataLoader(squares{n: 5}, s)
	require.NoError(t, err)

	// every sample shows up exactly once per epoch
	var values []int
	for dl.HasNext() {
		b, err := dl.Next()
		require.NoError(t, err)
		values = append(values, b.([]int)...)
	}
	sort.Ints(values)
	assert.Equal(t, []int{0, 1, 4, 9, 16}, values)
}
