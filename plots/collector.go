package plots

import (
	"fmt"
	"math"
	"time"
)

// Collector gathers training history and per-epoch diagnostics for
// visualization. Recording is gated on the enabled flag so a training loop
// can leave the calls in place and toggle plotting from configuration.
type Collector struct {
	modelName string
	enabled   bool

	// Loss history, one entry per recorded epoch
	epochs    []int
	trainLoss []float64
	validLoss []float64

	// End-effector positions from the most recent epoch, row-major [x y z]
	trainTargets   [][]float64
	trainPredicted [][]float64
	validTargets   [][]float64
	validPredicted [][]float64

	// Policy latent codes from the most recent epoch, one row per sample
	latents [][]float64
}

// NewCollector creates a new collector for the named model
func NewCollector(modelName string) *Collector {
	return &Collector{
		modelName: modelName,
		enabled:   true,
	}
}

// Enable turns on data collection
func (c *Collector) Enable() {
	c.enabled = true
}

// Disable turns off data collection
func (c *Collector) Disable() {
	c.enabled = false
}

// IsEnabled returns whether collection is active
func (c *Collector) IsEnabled() bool {
	return c.enabled
}

// RecordEpoch appends one epoch of loss history. Pass NaN for validLoss on
// epochs that skipped validation; non-finite points are omitted from
// generated plots.
func (c *Collector) RecordEpoch(epoch int, trainLoss, validLoss float64) {
	if !c.enabled {
		return
	}
	c.epochs = append(c.epochs, epoch)
	c.trainLoss = append(c.trainLoss, trainLoss)
	c.validLoss = append(c.validLoss, validLoss)
}

// RecordTrainPoses replaces the stored training-split poses with this
// epoch's targets and predictions.
func (c *Collector) RecordTrainPoses(targets, predicted [][]float64) {
	if !c.enabled {
		return
	}
	c.trainTargets = targets
	c.trainPredicted = predicted
}

// RecordValidationPoses replaces the stored validation-split poses with
// this epoch's targets and predictions.
func (c *Collector) RecordValidationPoses(targets, predicted [][]float64) {
	if !c.enabled {
		return
	}
	c.validTargets = targets
	c.validPredicted = predicted
}

// RecordLatents replaces the stored policy latent codes, one row per sample.
func (c *Collector) RecordLatents(latents [][]float64) {
	if !c.enabled {
		return
	}
	c.latents = latents
}

// Clear resets all collected data
func (c *Collector) Clear() {
	c.epochs = nil
	c.trainLoss = nil
	c.validLoss = nil
	c.trainTargets = nil
	c.trainPredicted = nil
	c.validTargets = nil
	c.validPredicted = nil
	c.latents = nil
}

// LossCurves generates the average-MSE-per-epoch plot. With logScale the
// natural log of each loss is plotted on a linear axis.
func (c *Collector) LossCurves(logScale bool) PlotData {
	if len(c.epochs) == 0 {
		return PlotData{}
	}

	title := "Avg mse"
	yLabel := "MSE"
	if logScale {
		title = "Avg mse in log scale"
		yLabel = "log MSE"
	}

	trainData := make([]DataPoint, 0, len(c.epochs))
	validData := make([]DataPoint, 0, len(c.epochs))
	for i, epoch := range c.epochs {
		x := float64(epoch + 1)
		trainY := c.trainLoss[i]
		validY := c.validLoss[i]
		if logScale {
			trainY = math.Log(trainY)
			validY = math.Log(validY)
		}
		if isFinite(trainY) {
			trainData = append(trainData, DataPoint{X: x, Y: trainY})
		}
		if isFinite(validY) {
			validData = append(validData, DataPoint{X: x, Y: validY})
		}
	}

	return PlotData{
		PlotType:  LossCurves,
		Title:     title,
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series: []SeriesData{
			{
				Name: "Train",
				Type: "line",
				Data: trainData,
				Style: map[string]interface{}{
					"color":      "#FF0000",
					"line_width": 2,
				},
			},
			{
				Name: "Validation",
				Type: "line",
				Data: validData,
				Style: map[string]interface{}{
					"color":      "#0000FF",
					"line_width": 2,
				},
			},
		},
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: yLabel,
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: true,
			ShowGrid:   true,
			Width:      800,
			Height:     600,
		},
		Metrics: lossMetrics(c.epochs, c.trainLoss, c.validLoss),
	}
}

// lossMetrics summarizes the loss history, skipping non-finite values that
// JSON cannot carry.
func lossMetrics(epochs []int, trainLoss, validLoss []float64) map[string]interface{} {
	metrics := map[string]interface{}{
		"epochs": len(epochs),
	}
	if v := trainLoss[len(trainLoss)-1]; isFinite(v) {
		metrics["final_train_loss"] = v
	}
	if v := validLoss[len(validLoss)-1]; isFinite(v) {
		metrics["final_valid_loss"] = v
	}
	return metrics
}

// ScatterPlot generates a 2D scatter of target end-effector positions
// against the positions the policy reconstructed, projected onto the first
// two axes. The targets series is drawn first so reconstructions overlay it.
func (c *Collector) ScatterPlot(split Split) PlotData {
	var targets, predicted [][]float64
	switch split {
	case TrainSplit:
		targets, predicted = c.trainTargets, c.trainPredicted
	case ValidationSplit:
		targets, predicted = c.validTargets, c.validPredicted
	case FullSplit:
		targets = append(append([][]float64{}, c.trainTargets...), c.validTargets...)
		predicted = append(append([][]float64{}, c.trainPredicted...), c.validPredicted...)
	}
	if len(targets) == 0 || len(predicted) == 0 {
		return PlotData{}
	}

	return PlotData{
		PlotType:  PoseScatter,
		Title:     fmt.Sprintf("End-effector positions (%s)", split),
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series: []SeriesData{
			{
				Name: "targets",
				Type: "scatter",
				Data: poseProjection(targets),
				Style: map[string]interface{}{
					"color": "#FF0000",
				},
			},
			{
				Name: "constructed",
				Type: "scatter",
				Data: poseProjection(predicted),
				Style: map[string]interface{}{
					"color": "#0000FF",
				},
			},
		},
		Config: PlotConfig{
			XAxisLabel: "",
			YAxisLabel: "",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: true,
			ShowGrid:   false,
			Width:      600,
			Height:     600,
		},
		Metrics: map[string]interface{}{
			"samples": len(targets),
		},
	}
}

// LatentHistograms generates one histogram series per latent dimension from
// the recorded policy outputs.
func (c *Collector) LatentHistograms() PlotData {
	if len(c.latents) == 0 || len(c.latents[0]) == 0 {
		return PlotData{}
	}
	dims := len(c.latents[0])

	series := make([]SeriesData, dims)
	for d := 0; d < dims; d++ {
		data := make([]DataPoint, 0, len(c.latents))
		for _, row := range c.latents {
			if d >= len(row) || !isFinite(row[d]) {
				continue
			}
			data = append(data, DataPoint{X: row[d]})
		}
		series[d] = SeriesData{
			Name: fmt.Sprintf("Latent %d", d+1),
			Type: "histogram",
			Data: data,
			Style: map[string]interface{}{
				"color": "#1F77B4",
				"bins":  100,
			},
		}
	}

	height := 160 * dims
	if height < 320 {
		height = 320
	}

	return PlotData{
		PlotType:  LatentHistograms,
		Title:     "Policy latent distributions",
		Timestamp: time.Now(),
		ModelName: c.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel: "x",
			YAxisLabel: "frequency",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: false,
			ShowGrid:   false,
			Width:      800,
			Height:     height,
		},
		Metrics: map[string]interface{}{
			"samples":    len(c.latents),
			"dimensions": dims,
		},
	}
}

// poseProjection keeps the first two coordinates of each pose row
func poseProjection(rows [][]float64) []DataPoint {
	points := make([]DataPoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 || !isFinite(row[0]) || !isFinite(row[1]) {
			continue
		}
		points = append(points, DataPoint{X: row[0], Y: row[1]})
	}
	return points
}
