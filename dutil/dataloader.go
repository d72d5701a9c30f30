package dutil

import (
	"fmt"
	"reflect"
)

// DataLoader walks a Dataset in the order a Sampler yields, returning
// typed slices of samples batch by batch.
type DataLoader struct {
	dataset   Dataset
	sampler   Sampler
	indexes   []int
	batchSize int
	dropLast  bool
	currIdx   int
}

// NewDataLoader creates a DataLoader coupling a dataset with a sampler.
func NewDataLoader(data Dataset, s Sampler) (*DataLoader, error) {
	if data.Len() < 1 {
		return nil, fmt.Errorf("Expected a non-empty dataset. Got %v samples", data.Len())
	}

	dl := &DataLoader{
		dataset:   data,
		sampler:   s,
		batchSize: s.BatchSize(),
	}
	if bs, ok := s.(*BatchSampler); ok {
		dl.dropLast = bs.DropLast()
	}
	dl.Reset()

	return dl, nil
}

// Reset starts a new epoch, resampling the iteration order.
func (dl *DataLoader) Reset() {
	dl.indexes = dl.sampler.Sample()
	dl.currIdx = 0
}

// HasNext reports whether a further batch is available this epoch.
func (dl *DataLoader) HasNext() bool {
	remaining := len(dl.indexes) - dl.currIdx
	if dl.dropLast {
		return remaining >= dl.batchSize
	}

	return remaining > 0
}

// Next returns the next batch as a slice of the dataset's element type,
// e.g. []data.Sample for a dataset whose DType is data.Sample.
func (dl *DataLoader) Next() (interface{}, error) {
	if !dl.HasNext() {
		return nil, fmt.Errorf("No more batches. Call Reset to start a new epoch")
	}

	n := dl.batchSize
	if remaining := len(dl.indexes) - dl.currIdx; n > remaining {
		n = remaining
	}

	items := reflect.MakeSlice(reflect.SliceOf(dl.dataset.DType()), 0, n)
	for i := 0; i < n; i++ {
		item, err := dl.dataset.Item(dl.indexes[dl.currIdx])
		if err != nil {
			return nil, err
		}
		items = reflect.Append(items, reflect.ValueOf(item))
		dl.currIdx++
	}

	return items.Interface(), nil
}
