package score

import (
	"fmt"
	"math"

	"github.com/lox/forecasteval/internal/models"
)

// SeriesError ties a scoring failure to the series that caused it.
type SeriesError struct {
	ID       string
	Category models.Category
	Err      error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("series %s (%s): %v", e.ID, e.Category, e.Err)
}

func (e *SeriesError) Unwrap() error { return e.Err }

// SMAPE returns the pointwise symmetric percentage error on a 0..200 scale.
// Points where both values are zero score 0.
func SMAPE(forecast, target []float64) ([]float64, error) {
	if len(forecast) != len(target) {
		return nil, fmt.Errorf("%w: forecast has %d points, target has %d", models.ErrSchemaMismatch, len(forecast), len(target))
	}
	out := make([]float64, len(target))
	for i := range target {
		denom := math.Abs(target[i]) + math.Abs(forecast[i])
		if denom == 0 {
			denom = 1
		}
		out[i] = 200 * math.Abs(forecast[i]-target[i]) / denom
	}
	return out, nil
}

// SeriesSMAPE is the mean of SMAPE over one series.
func SeriesSMAPE(forecast, target []float64) (float64, error) {
	points, err := SMAPE(forecast, target)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("%w: empty target", models.ErrSchemaMismatch)
	}
	return mean(points), nil
}

// MAE is the mean absolute error between forecast and target.
func MAE(forecast, target []float64) (float64, error) {
	if len(forecast) != len(target) {
		return 0, fmt.Errorf("%w: forecast has %d points, target has %d", models.ErrSchemaMismatch, len(forecast), len(target))
	}
	if len(target) == 0 {
		return 0, fmt.Errorf("%w: empty target", models.ErrSchemaMismatch)
	}
	var sum float64
	for i := range target {
		sum += math.Abs(forecast[i] - target[i])
	}
	return sum / float64(len(target)), nil
}

// SeasonalScale is the mean absolute difference between insample points
// one season apart.
func SeasonalScale(insample []float64, frequency int) (float64, error) {
	if frequency < 1 {
		return 0, fmt.Errorf("%w: frequency %d", models.ErrSchemaMismatch, frequency)
	}
	if len(insample) < frequency+1 {
		return 0, fmt.Errorf("%w: %d insample points, need at least %d", models.ErrInsufficientHistory, len(insample), frequency+1)
	}
	var sum float64
	for i := frequency; i < len(insample); i++ {
		sum += math.Abs(insample[i] - insample[i-frequency])
	}
	return sum / float64(len(insample)-frequency), nil
}

// MASE scales the forecast MAE by the insample seasonal naive error.
// A flat insample gives a zero scale and the result follows float division
// (+Inf, or NaN when the forecast is also exact).
func MASE(insample, outsample, forecast []float64, frequency int) (float64, error) {
	scale, err := SeasonalScale(insample, frequency)
	if err != nil {
		return 0, err
	}
	mae, err := MAE(forecast, outsample)
	if err != nil {
		return 0, err
	}
	return mae / scale, nil
}

// Mean averages per-series scores of one category.
func Mean(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, models.ErrEmptyCategory
	}
	return mean(scores), nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
