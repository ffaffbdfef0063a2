// Package dataset reads and writes latent reach datasets: perception
// latents paired with target end-effector coordinates, stored as JSON
// or gob depending on the file extension.
package dataset

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Load reads a dataset container from a .json or .gob file and
// validates it
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %v", err)
	}
	defer file.Close()

	var f File
	if isGobPath(path) {
		if err := gob.NewDecoder(file).Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode dataset: %v", err)
		}
	} else {
		if err := json.NewDecoder(file).Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode dataset: %v", err)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Save writes the dataset container to a .json or .gob file
func Save(f *File, path string) error {
	if err := f.Validate(); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %v", err)
	}
	defer file.Close()

	if isGobPath(path) {
		if err := gob.NewEncoder(file).Encode(f); err != nil {
			return fmt.Errorf("failed to encode dataset: %v", err)
		}
		return nil
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(f); err != nil {
		return fmt.Errorf("failed to encode dataset: %v", err)
	}
	return nil
}

func isGobPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gob")
}
