// Package positioning trains coordinate regressors on reference-tag
// feature rows and scores every tag's rows against them.
package positioning

import (
	"fmt"
)

// Regressor is the supervised-regression capability the pipeline is built
// against. Any method satisfying train/predict is acceptable; the pipeline
// is agnostic to its internals.
type Regressor interface {
	// Train fits the model on the given inputs and labels. Inputs must be
	// rectangular and non-empty.
	Train(inputs [][]float64, labels []float64) error
	// Predict scores a single input of the same width used in training.
	Predict(input []float64) (float64, error)
}

// RegressorFactory constructs a fresh, untrained regressor. The trainer
// uses one factory to build the independent X and Y models.
type RegressorFactory func() Regressor

// NewRegressorFactory maps a configured model name to a factory.
// Supported: "knn" (inverse-distance weighted k nearest neighbors) and
// "linear" (ordinary least squares).
func NewRegressorFactory(model string, knnNeighbors int) (RegressorFactory, error) {
	switch model {
	case "knn":
		if knnNeighbors < 1 {
			return nil, fmt.Errorf("%w: %d < 1", ErrNeighborCount, knnNeighbors)
		}
		return func() Regressor { return NewKNNRegressor(knnNeighbors) }, nil
	case "linear":
		return func() Regressor { return NewLinearRegressor() }, nil
	default:
		return nil, fmt.Errorf("unknown regression model %q", model)
	}
}
