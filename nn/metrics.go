package nn

import (
	"math"
)

// RegressionMetrics holds comprehensive regression evaluation metrics
type RegressionMetrics struct {
	MAE  float64 // Mean Absolute Error
	MSE  float64 // Mean Squared Error
	RMSE float64 // Root Mean Squared Error
	R2   float64 // R-squared
	NMAE float64 // Normalized Mean Absolute Error
}

// CalculateRegressionMetrics computes comprehensive regression metrics over
// the first count elements of the prediction and target slices.
func CalculateRegressionMetrics(
	predictions []float32,
	trueValues []float32,
	count int,
) *RegressionMetrics {
	if len(predictions) < count || len(trueValues) < count || count == 0 {
		return &RegressionMetrics{}
	}

	// Calculate mean of true values for R²
	meanTrue := 0.0
	for i := 0; i < count; i++ {
		meanTrue += float64(trueValues[i])
	}
	meanTrue /= float64(count)

	sumAbsErr := 0.0
	sumSqErr := 0.0
	sumSqTotal := 0.0
	minTrue := math.Inf(1)
	maxTrue := math.Inf(-1)

	for i := 0; i < count; i++ {
		pred := float64(predictions[i])
		actual := float64(trueValues[i])

		absErr := math.Abs(pred - actual)
		sqErr := (pred - actual) * (pred - actual)

		sumAbsErr += absErr
		sumSqErr += sqErr
		sumSqTotal += (actual - meanTrue) * (actual - meanTrue)

		if actual < minTrue {
			minTrue = actual
		}
		if actual > maxTrue {
			maxTrue = actual
		}
	}

	mae := sumAbsErr / float64(count)
	mse := sumSqErr / float64(count)
	rmse := math.Sqrt(mse)

	// R² calculation
	r2 := 0.0
	if sumSqTotal > 0 {
		r2 = 1.0 - (sumSqErr / sumSqTotal)
	}

	// Normalized MAE (scale by range)
	nmae := 0.0
	if maxTrue > minTrue {
		nmae = mae / (maxTrue - minTrue)
	}

	return &RegressionMetrics{
		MAE:  mae,
		MSE:  mse,
		RMSE: rmse,
		R2:   r2,
		NMAE: nmae,
	}
}
