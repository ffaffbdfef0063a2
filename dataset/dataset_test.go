package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// testFile builds a small valid container with n samples of width g.
func testFile(n, g int) *File {
	samples := make([]Sample, n)
	for i := range samples {
		latent := make(LatentVector, g)
		for j := range latent {
			latent[j] = float32(i*g + j)
		}
		samples[i] = Sample{
			Latent: latent,
			Target: []float32{float32(i), float32(i) * 2, float32(i) * 3},
		}
	}
	return &File{Name: "fixture", GLatent: g, Samples: samples}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		if err := testFile(4, 10).Validate(); err != nil {
			t.Errorf("Expected valid file, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		f := &File{Name: "empty"}
		if err := f.Validate(); err == nil {
			t.Error("Expected error for empty dataset")
		}
	})

	t.Run("InferredWidth", func(t *testing.T) {
		f := testFile(3, 5)
		f.GLatent = 0
		if err := f.Validate(); err != nil {
			t.Fatalf("Expected valid file, got %v", err)
		}
		if f.GLatent != 5 {
			t.Errorf("Expected inferred latent width 5, got %d", f.GLatent)
		}
	})

	t.Run("LatentWidthMismatch", func(t *testing.T) {
		f := testFile(3, 5)
		f.Samples[1].Latent = f.Samples[1].Latent[:3]
		if err := f.Validate(); err == nil {
			t.Error("Expected error for mismatched latent width")
		}
	})

	t.Run("TargetWidthMismatch", func(t *testing.T) {
		f := testFile(3, 5)
		f.Samples[2].Target = []float32{1, 2}
		if err := f.Validate(); err == nil {
			t.Error("Expected error for non-3D target")
		}
	})
}

func TestLatentVectorSqueeze(t *testing.T) {
	t.Run("Flat", func(t *testing.T) {
		var lv LatentVector
		if err := json.Unmarshal([]byte(`[1, 2, 3]`), &lv); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if len(lv) != 3 || lv[0] != 1 || lv[2] != 3 {
			t.Errorf("Expected [1 2 3], got %v", lv)
		}
	})

	t.Run("BatchAxis", func(t *testing.T) {
		var lv LatentVector
		if err := json.Unmarshal([]byte(`[[4, 5, 6]]`), &lv); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if len(lv) != 3 || lv[0] != 4 || lv[2] != 6 {
			t.Errorf("Expected squeezed [4 5 6], got %v", lv)
		}
	})

	t.Run("EmptyRows", func(t *testing.T) {
		var lv LatentVector
		if err := json.Unmarshal([]byte(`[]`), &lv); err != nil {
			// A bare empty array decodes as a flat empty latent
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if len(lv) != 0 {
			t.Errorf("Expected empty latent, got %v", lv)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		var lv LatentVector
		if err := json.Unmarshal([]byte(`"not a latent"`), &lv); err == nil {
			t.Error("Expected error for non-array latent")
		}
	})
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"reach.json", "reach.gob"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			original := testFile(6, 10)

			if err := Save(original, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.Name != original.Name {
				t.Errorf("Expected name %q, got %q", original.Name, loaded.Name)
			}
			if loaded.GLatent != 10 {
				t.Errorf("Expected latent width 10, got %d", loaded.GLatent)
			}
			if len(loaded.Samples) != 6 {
				t.Fatalf("Expected 6 samples, got %d", len(loaded.Samples))
			}

			for i, sample := range loaded.Samples {
				for j, v := range sample.Latent {
					if v != original.Samples[i].Latent[j] {
						t.Errorf("Sample %d latent %d: expected %f, got %f",
							i, j, original.Samples[i].Latent[j], v)
					}
				}
				for j, v := range sample.Target {
					if v != original.Samples[i].Target[j] {
						t.Errorf("Sample %d target %d: expected %f, got %f",
							i, j, original.Samples[i].Target[j], v)
					}
				}
			}
		})
	}
}

func TestLoadBatchAxisLatents(t *testing.T) {
	// A dataset written by an encoder keeps the [1][G] batch axis;
	// loading squeezes it away
	raw := `{
		"name": "encoder_output",
		"g_latent": 3,
		"samples": [
			{"latent": [[1, 2, 3]], "target": [0.1, 0.2, 0.3]},
			{"latent": [[4, 5, 6]], "target": [0.4, 0.5, 0.6]}
		]
	}`

	path := filepath.Join(t.TempDir(), "encoded.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(loaded.Samples))
	}
	if len(loaded.Samples[0].Latent) != 3 {
		t.Errorf("Expected squeezed latent width 3, got %d", len(loaded.Samples[0].Latent))
	}
	if loaded.Samples[1].Latent[0] != 4 {
		t.Errorf("Expected latent value 4, got %f", loaded.Samples[1].Latent[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestToDataset(t *testing.T) {
	f := testFile(5, 10)

	ds, err := f.ToDataset()
	if err != nil {
		t.Fatalf("ToDataset failed: %v", err)
	}

	if ds.Len() != 5 {
		t.Errorf("Expected 5 samples, got %d", ds.Len())
	}

	data, label, err := ds.Get(2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if data.Shape[0] != 10 {
		t.Errorf("Expected latent shape [10], got %v", data.Shape)
	}
	if label.Shape[0] != 3 {
		t.Errorf("Expected target shape [3], got %v", label.Shape)
	}

	labelData, _ := label.GetFloat32Data()
	if labelData[0] != 2 || labelData[1] != 4 || labelData[2] != 6 {
		t.Errorf("Expected target [2 4 6], got %v", labelData)
	}

	latentData, _ := data.GetFloat32Data()
	if latentData[0] != 20 {
		t.Errorf("Expected first latent value 20, got %f", latentData[0])
	}
}
