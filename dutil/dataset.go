package dutil

import "reflect"

// Dataset is a map-style collection of samples.
type Dataset interface {
	// Item returns the sample at idx.
	Item(idx int) (interface{}, error)

	// Len returns the number of samples.
	Len() int

	// DType returns the concrete type Item yields. DataLoader batches
	// are slices of this type.
	DType() reflect.Type
}
