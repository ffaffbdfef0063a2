package plots

import (
	"bytes"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleCollector() *Collector {
	c := NewCollector("test")
	c.RecordEpoch(0, 4.0, 5.0)
	c.RecordEpoch(1, 2.0, 2.5)
	c.RecordEpoch(2, 1.0, 1.25)
	c.RecordTrainPoses(
		[][]float64{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
		[][]float64{{0.15, 0.25, 0.35}, {0.35, 0.45, 0.55}},
	)
	c.RecordValidationPoses(
		[][]float64{{0.7, 0.8, 0.9}},
		[][]float64{{0.65, 0.75, 0.85}},
	)
	c.RecordLatents([][]float64{
		{0.1, -0.5},
		{0.2, -0.4},
		{0.3, -0.3},
		{0.4, -0.2},
	})
	return c
}

func TestRenderPNGLossCurves(t *testing.T) {
	c := sampleCollector()
	data, err := RenderPNG(c.LossCurves(false))
	if err != nil {
		t.Fatalf("Failed to render loss curves: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("Expected rendered output to be a PNG image")
	}
}

func TestRenderPNGScatter(t *testing.T) {
	c := sampleCollector()
	data, err := RenderPNG(c.ScatterPlot(FullSplit))
	if err != nil {
		t.Fatalf("Failed to render scatter plot: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("Expected rendered output to be a PNG image")
	}
}

func TestRenderPNGLatentHistograms(t *testing.T) {
	c := sampleCollector()
	data, err := RenderPNG(c.LatentHistograms())
	if err != nil {
		t.Fatalf("Failed to render latent histograms: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("Expected rendered output to be a PNG image")
	}
}

func TestRenderPNGNoSeries(t *testing.T) {
	if _, err := RenderPNG(PlotData{Title: "empty"}); err == nil {
		t.Error("Expected error when rendering plot data without series")
	}
}

func TestRenderPNGNoFinitePoints(t *testing.T) {
	pd := PlotData{
		PlotType: LossCurves,
		Title:    "bad",
		Series: []SeriesData{
			{
				Name: "Train",
				Type: "line",
				Data: []DataPoint{
					{X: 1, Y: math.NaN()},
					{X: 2, Y: math.Inf(1)},
				},
			},
		},
	}
	if _, err := RenderPNG(pd); err == nil {
		t.Error("Expected error when every data point is non-finite")
	}
}

func TestSavePNG(t *testing.T) {
	c := sampleCollector()
	path := filepath.Join(t.TempDir(), "nested", "loss.png")

	if err := SavePNG(c.LossCurves(false), path); err != nil {
		t.Fatalf("Failed to save plot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read saved plot: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("Expected saved file to be a PNG image")
	}
}

func TestWriteEpochPlots(t *testing.T) {
	c := sampleCollector()
	dir := t.TempDir()

	if err := WriteEpochPlots(c, dir); err != nil {
		t.Fatalf("Failed to write epoch plots: %v", err)
	}

	expected := []string{
		"loss.png",
		"loss_log.png",
		"scatter_train.png",
		"scatter_val.png",
		"scatter_full.png",
		"latents.png",
	}
	for _, name := range expected {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
}

func TestWriteEpochPlotsSkipsMissingData(t *testing.T) {
	c := NewCollector("test")
	c.RecordEpoch(0, 2.0, 3.0)
	dir := t.TempDir()

	if err := WriteEpochPlots(c, dir); err != nil {
		t.Fatalf("Failed to write epoch plots: %v", err)
	}

	for _, name := range []string{"loss.png", "loss_log.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
	for _, name := range []string{"scatter_train.png", "latents.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be skipped without pose data", name)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	col, err := parseHexColor("#FF0000")
	if err != nil {
		t.Fatalf("Failed to parse hex color: %v", err)
	}
	want := color.RGBA{R: 255, G: 0, B: 0, A: 255}
	if col != want {
		t.Errorf("Expected %v, got %v", want, col)
	}

	if _, err := parseHexColor("red"); err == nil {
		t.Error("Expected error for non-hex color")
	}
	if _, err := parseHexColor("#12345"); err == nil {
		t.Error("Expected error for short hex color")
	}
}
