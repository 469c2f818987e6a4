package positioning

import (
	"fmt"

	"github.com/sajari/regression"
)

// LinearRegressor fits an ordinary least squares model. It is cheap to
// evaluate but requires variance in the training features; degenerate
// training sets should use the knn model instead.
type LinearRegressor struct {
	model *regression.Regression
	width int
}

// NewLinearRegressor creates an untrained OLS regressor.
func NewLinearRegressor() *LinearRegressor {
	return &LinearRegressor{}
}

// Train fits coefficients for every feature column plus an intercept.
func (r *LinearRegressor) Train(inputs [][]float64, labels []float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("linear: empty training set")
	}
	if len(inputs) != len(labels) {
		return fmt.Errorf("linear: %d inputs but %d labels", len(inputs), len(labels))
	}

	model := new(regression.Regression)
	model.SetObserved("coordinate")
	for i := range inputs[0] {
		model.SetVar(i, fmt.Sprintf("f%d", i))
	}
	for i, in := range inputs {
		model.Train(regression.DataPoint(labels[i], in))
	}
	if err := model.Run(); err != nil {
		return fmt.Errorf("linear: fit failed: %w", err)
	}

	r.model = model
	r.width = len(inputs[0])
	return nil
}

// Predict evaluates the fitted model on one input.
func (r *LinearRegressor) Predict(input []float64) (float64, error) {
	if r.model == nil {
		return 0, fmt.Errorf("linear: model not trained")
	}
	if len(input) != r.width {
		return 0, fmt.Errorf("linear: input width %d, want %d", len(input), r.width)
	}
	return r.model.Predict(input)
}
