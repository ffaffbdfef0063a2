package checkpoints

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Register the concrete types that appear inside interface-typed fields
// (OptimizerState.Parameters values) so gob can encode them.
func init() {
	gob.Register(float64(0))
	gob.Register(float32(0))
	gob.Register(int(0))
	gob.Register(bool(false))
	gob.Register(string(""))
	gob.Register([]int{})
}

// saveGob saves checkpoint in gob format. The file is written to a
// temporary path first and renamed so a crash never leaves a truncated
// checkpoint behind.
func (cs *CheckpointSaver) saveGob(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "latentreach"
		checkpoint.Metadata.Version = "1.0.0"
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file %s: %v", tempPath, err)
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary checkpoint file: %v", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary checkpoint file to %s: %v", path, err)
	}

	return nil
}

// loadGob loads checkpoint from gob format
func (cs *CheckpointSaver) loadGob(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := gob.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}
