package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/mtoivainen/latentreach/nn"
	"github.com/mtoivainen/latentreach/tensor"
)

// TargetSize is the width of a target coordinate (x, y, z).
const TargetSize = 3

// File is the on-disk latent dataset container: N samples of a perception
// latent paired with the 3D coordinate the arm should reach.
type File struct {
	Name    string   `json:"name"`
	GLatent int      `json:"g_latent"`
	Samples []Sample `json:"samples"`
}

// Sample pairs one perception latent with its target coordinate
type Sample struct {
	Latent LatentVector `json:"latent"`
	Target []float32    `json:"target"`
}

// LatentVector is a perception latent of width G. Encoders write latents
// with a leading batch axis, so the JSON form may be either a flat [G]
// vector or a nested [1][G] row; decoding squeezes to [G].
type LatentVector []float32

func (lv *LatentVector) UnmarshalJSON(data []byte) error {
	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		*lv = flat
		return nil
	}

	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err != nil {
		return fmt.Errorf("latent must be a [G] or [1][G] float array: %v", err)
	}
	if len(nested) == 0 {
		return fmt.Errorf("latent has no rows")
	}
	*lv = nested[0]
	return nil
}

// Validate checks the container invariants: at least one sample, every
// latent of width GLatent, every target of width 3. A zero GLatent is
// inferred from the first sample.
func (f *File) Validate() error {
	if len(f.Samples) == 0 {
		return fmt.Errorf("dataset %q has no samples", f.Name)
	}

	if f.GLatent == 0 {
		f.GLatent = len(f.Samples[0].Latent)
	}
	if f.GLatent <= 0 {
		return fmt.Errorf("dataset %q has empty latents", f.Name)
	}

	for i, sample := range f.Samples {
		if len(sample.Latent) != f.GLatent {
			return fmt.Errorf("sample %d: latent width %d, want %d", i, len(sample.Latent), f.GLatent)
		}
		if len(sample.Target) != TargetSize {
			return fmt.Errorf("sample %d: target width %d, want %d", i, len(sample.Target), TargetSize)
		}
	}

	return nil
}

// ToDataset converts the container into per-sample tensors behind the
// nn.Dataset interface
func (f *File) ToDataset() (*nn.SimpleDataset, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	data := make([]*tensor.Tensor, len(f.Samples))
	labels := make([]*tensor.Tensor, len(f.Samples))

	for i, sample := range f.Samples {
		latent, err := tensor.NewTensor([]int{f.GLatent}, tensor.Float32, []float32(sample.Latent))
		if err != nil {
			return nil, fmt.Errorf("sample %d: failed to create latent tensor: %v", i, err)
		}
		target, err := tensor.NewTensor([]int{TargetSize}, tensor.Float32, sample.Target)
		if err != nil {
			return nil, fmt.Errorf("sample %d: failed to create target tensor: %v", i, err)
		}
		data[i] = latent
		labels[i] = target
	}

	return nn.NewSimpleDataset(data, labels)
}
