package plots

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// RenderPNG renders plot data to an in-memory PNG image
func RenderPNG(pd PlotData) ([]byte, error) {
	if len(pd.Series) == 0 {
		return nil, fmt.Errorf("plot %q has no series to render", pd.Title)
	}
	if pd.PlotType == LatentHistograms {
		return renderHistogramGrid(pd)
	}
	return renderSinglePanel(pd)
}

// SavePNG renders plot data and writes it to path, creating parent
// directories as needed.
func SavePNG(pd PlotData, path string) error {
	data, err := RenderPNG(pd)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plot file: %w", err)
	}
	return nil
}

// WriteEpochPlots renders the standard per-epoch diagnostic set into dir.
// Plots the collector has no data for yet are skipped.
func WriteEpochPlots(c *Collector, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	files := []struct {
		pd   PlotData
		name string
	}{
		{c.LossCurves(false), "loss.png"},
		{c.LossCurves(true), "loss_log.png"},
		{c.ScatterPlot(TrainSplit), "scatter_train.png"},
		{c.ScatterPlot(ValidationSplit), "scatter_val.png"},
		{c.ScatterPlot(FullSplit), "scatter_full.png"},
		{c.LatentHistograms(), "latents.png"},
	}
	for _, f := range files {
		if len(f.pd.Series) == 0 {
			continue
		}
		if err := SavePNG(f.pd, filepath.Join(dir, f.name)); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

func renderSinglePanel(pd PlotData) ([]byte, error) {
	p := plot.New()
	p.Title.Text = pd.Title
	p.X.Label.Text = pd.Config.XAxisLabel
	p.Y.Label.Text = pd.Config.YAxisLabel
	p.Legend.Top = true
	if pd.Config.ShowGrid {
		p.Add(plotter.NewGrid())
	}

	points := 0
	for _, s := range pd.Series {
		xys := finiteXYs(s.Data)
		if len(xys) == 0 {
			continue
		}
		points += len(xys)

		switch s.Type {
		case "scatter":
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("failed to build scatter series %q: %w", s.Name, err)
			}
			sc.GlyphStyle.Color = styleColor(s.Style, color.RGBA{R: 31, G: 119, B: 180, A: 255})
			sc.GlyphStyle.Radius = vg.Points(2)
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(sc)
			if pd.Config.ShowLegend {
				p.Legend.Add(s.Name, sc)
			}
		default:
			ln, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("failed to build line series %q: %w", s.Name, err)
			}
			ln.LineStyle.Color = styleColor(s.Style, color.RGBA{R: 31, G: 119, B: 180, A: 255})
			ln.LineStyle.Width = vg.Points(styleFloat(s.Style, "line_width", 1.5))
			p.Add(ln)
			if pd.Config.ShowLegend {
				p.Legend.Add(s.Name, ln)
			}
		}
	}
	if points == 0 {
		return nil, fmt.Errorf("plot %q has no finite data points", pd.Title)
	}

	width, height := canvasSize(pd.Config)
	return writePNG([][]*plot.Plot{{p}}, width, height)
}

// renderHistogramGrid draws one histogram per series, stacked vertically
// with a shared x range.
func renderHistogramGrid(pd PlotData) ([]byte, error) {
	var panels []*plot.Plot
	xMin := math.Inf(1)
	xMax := math.Inf(-1)

	for _, s := range pd.Series {
		vals := finiteValues(s.Data)
		if len(vals) == 0 {
			continue
		}
		for _, v := range vals {
			xMin = math.Min(xMin, v)
			xMax = math.Max(xMax, v)
		}

		hist, err := plotter.NewHist(plotter.Values(vals), styleInt(s.Style, "bins", 100))
		if err != nil {
			return nil, fmt.Errorf("failed to build histogram series %q: %w", s.Name, err)
		}
		hist.FillColor = styleColor(s.Style, color.RGBA{R: 31, G: 119, B: 180, A: 255})

		p := plot.New()
		p.Title.Text = s.Name
		p.Y.Label.Text = pd.Config.YAxisLabel
		p.Add(hist)
		panels = append(panels, p)
	}
	if len(panels) == 0 {
		return nil, fmt.Errorf("plot %q has no finite data points", pd.Title)
	}

	// Shared x range across all panels, padded so edge bins are not clipped
	pad := (xMax - xMin) * 0.02
	if pad == 0 {
		pad = 0.5
	}
	for _, p := range panels {
		p.X.Min = xMin - pad
		p.X.Max = xMax + pad
	}
	panels[len(panels)-1].X.Label.Text = pd.Config.XAxisLabel

	grid := make([][]*plot.Plot, len(panels))
	for i, p := range panels {
		grid[i] = []*plot.Plot{p}
	}
	width, height := canvasSize(pd.Config)
	return writePNG(grid, width, height)
}

func writePNG(grid [][]*plot.Plot, width, height vg.Length) ([]byte, error) {
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      1,
		PadX:      vg.Points(4),
		PadY:      vg.Points(8),
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(4),
	}
	canvases := plot.Align(grid, tiles, dc)
	for i, row := range grid {
		for j, p := range row {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	var buf bytes.Buffer
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func canvasSize(cfg PlotConfig) (vg.Length, vg.Length) {
	width := cfg.Width
	height := cfg.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return vg.Points(float64(width)), vg.Points(float64(height))
}

func finiteXYs(data []DataPoint) plotter.XYs {
	xys := make(plotter.XYs, 0, len(data))
	for _, d := range data {
		if !isFinite(d.X) || !isFinite(d.Y) {
			continue
		}
		xys = append(xys, plotter.XY{X: d.X, Y: d.Y})
	}
	return xys
}

func finiteValues(data []DataPoint) []float64 {
	vals := make([]float64, 0, len(data))
	for _, d := range data {
		if !isFinite(d.X) {
			continue
		}
		vals = append(vals, d.X)
	}
	return vals
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func styleColor(style map[string]interface{}, fallback color.Color) color.Color {
	if style != nil {
		if s, ok := style["color"].(string); ok {
			if c, err := parseHexColor(s); err == nil {
				return c
			}
		}
	}
	return fallback
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}

func styleInt(style map[string]interface{}, key string, fallback int) int {
	if style == nil {
		return fallback
	}
	switch v := style[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func styleFloat(style map[string]interface{}, key string, fallback float64) float64 {
	if style == nil {
		return fallback
	}
	switch v := style[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return fallback
}
