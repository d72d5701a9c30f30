package dutil

import (
	"fmt"
	"math/rand"
)

// Sampler generates the index order a DataLoader walks a dataset in.
type Sampler interface {
	// Sample returns dataset indexes in iteration order.
	Sample() []int

	// BatchSize returns the number of indexes per batch.
	BatchSize() int
}

// BatchSampler yields batches of indexes over a dataset, optionally
// shuffled on every epoch, optionally dropping a trailing short batch.
type BatchSampler struct {
	n         int
	batchSize int
	dropLast  bool
	shuffle   bool
}

// NewBatchSampler creates a BatchSampler over n samples.
func NewBatchSampler(n, batchSize int, dropLast, shuffle bool) (*BatchSampler, error) {
	if n < 1 {
		return nil, fmt.Errorf("Expected a positive number of samples. Got %v", n)
	}
	if batchSize < 1 || batchSize > n {
		return nil, fmt.Errorf("Expected batch size in range [1, %v]. Got %v", n, batchSize)
	}

	return &BatchSampler{
		n:         n,
		batchSize: batchSize,
		dropLast:  dropLast,
		shuffle:   shuffle,
	}, nil
}

// Sample returns this epoch's index order.
func (s *BatchSampler) Sample() []int {
	if s.shuffle {
		return rand.Perm(s.n)
	}

	indexes := make([]int, s.n)
	for i := range indexes {
		indexes[i] = i
	}

	return indexes
}

// BatchSize returns the number of indexes per batch.
func (s *BatchSampler) BatchSize() int {
	return s.batchSize
}

// DropLast reports whether a trailing short batch is discarded.
func (s *BatchSampler) DropLast() bool {
	return s.dropLast
}
