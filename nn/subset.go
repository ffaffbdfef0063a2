package nn

import (
	"fmt"

	"github.com/mtoivainen/latentreach/tensor"
)

// SubsetDataset wraps a dataset to expose only a subset of its samples
type SubsetDataset struct {
	original Dataset
	indices  []int
}

// NewSubsetDataset creates a dataset limited to the first limit samples
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative, got %d", limit)
	}
	if limit > original.Len() {
		limit = original.Len()
	}

	indices := make([]int, limit)
	for i := range indices {
		indices[i] = i
	}

	return &SubsetDataset{
		original: original,
		indices:  indices,
	}, nil
}

// NewIndexSubsetDataset creates a dataset exposing exactly the given
// indices of the original, in order
func NewIndexSubsetDataset(original Dataset, indices []int) (*SubsetDataset, error) {
	n := original.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, n)
		}
	}

	owned := make([]int, len(indices))
	copy(owned, indices)

	return &SubsetDataset{
		original: original,
		indices:  owned,
	}, nil
}

// RandomSplit randomly partitions a dataset into train and validation
// subsets. The train subset holds int(trainFraction * N) samples; the
// validation subset holds the rest.
func RandomSplit(original Dataset, trainFraction float64) (*SubsetDataset, *SubsetDataset, error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, fmt.Errorf("train fraction must be in (0, 1), got %g", trainFraction)
	}

	n := original.Len()
	trainSize := int(trainFraction * float64(n))
	if trainSize == 0 || trainSize == n {
		return nil, nil, fmt.Errorf("dataset of %d samples cannot be split at fraction %g", n, trainFraction)
	}

	perm := globalRng.Perm(n)

	train := &SubsetDataset{original: original, indices: perm[:trainSize]}
	valid := &SubsetDataset{original: original, indices: perm[trainSize:]}
	return train, valid, nil
}

// NewRandomSubsetDataset creates a dataset of size randomly drawn samples
// without replacement. Useful for quick debugging runs.
func NewRandomSubsetDataset(original Dataset, size int) (*SubsetDataset, error) {
	if size < 0 {
		return nil, fmt.Errorf("size must be non-negative, got %d", size)
	}
	n := original.Len()
	if size > n {
		size = n
	}

	perm := globalRng.Perm(n)
	indices := make([]int, size)
	copy(indices, perm[:size])

	return &SubsetDataset{
		original: original,
		indices:  indices,
	}, nil
}

// Len returns the number of samples in the subset
func (sd *SubsetDataset) Len() int {
	return len(sd.indices)
}

// Get returns a sample at the given index within the subset
func (sd *SubsetDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(sd.indices) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(sd.indices))
	}

	return sd.original.Get(sd.indices[idx])
}
