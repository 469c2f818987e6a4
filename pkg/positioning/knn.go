package positioning

import (
	"fmt"
	"math"
	"sort"
)

// KNNRegressor predicts by inverse-distance weighting the labels of the k
// nearest training rows. It is deterministic, has no training cost beyond
// copying the data, and reproduces its labels exactly on degenerate
// zero-variance training sets.
type KNNRegressor struct {
	k      int
	inputs [][]float64
	labels []float64
}

// NewKNNRegressor creates a regressor using the k nearest neighbors. k is
// clamped to [1, training-set size] at prediction time.
func NewKNNRegressor(k int) *KNNRegressor {
	return &KNNRegressor{k: k}
}

// Train stores the training set.
func (r *KNNRegressor) Train(inputs [][]float64, labels []float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("knn: empty training set")
	}
	if len(inputs) != len(labels) {
		return fmt.Errorf("knn: %d inputs but %d labels", len(inputs), len(labels))
	}
	width := len(inputs[0])
	for i, in := range inputs {
		if len(in) != width {
			return fmt.Errorf("knn: input %d has width %d, want %d", i, len(in), width)
		}
	}
	r.inputs = make([][]float64, len(inputs))
	for i, in := range inputs {
		r.inputs[i] = append([]float64(nil), in...)
	}
	r.labels = append([]float64(nil), labels...)
	return nil
}

type neighbor struct {
	index    int
	distance float64
}

// Predict returns the inverse-distance weighted mean label of the k
// nearest neighbors. Ties on distance break on training order so repeated
// runs give identical results.
func (r *KNNRegressor) Predict(input []float64) (float64, error) {
	if len(r.inputs) == 0 {
		return 0, fmt.Errorf("knn: model not trained")
	}
	if len(input) != len(r.inputs[0]) {
		return 0, fmt.Errorf("knn: input width %d, want %d", len(input), len(r.inputs[0]))
	}

	neighbors := make([]neighbor, len(r.inputs))
	for i, train := range r.inputs {
		neighbors[i] = neighbor{index: i, distance: euclidean(input, train)}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].distance != neighbors[j].distance {
			return neighbors[i].distance < neighbors[j].distance
		}
		return neighbors[i].index < neighbors[j].index
	})

	k := r.k
	if k < 1 {
		k = 1
	}
	if k > len(neighbors) {
		k = len(neighbors)
	}

	var weightSum, labelSum float64
	for _, n := range neighbors[:k] {
		w := 1.0 / (n.distance + 1e-9)
		weightSum += w
		labelSum += w * r.labels[n.index]
	}
	return labelSum / weightSum, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
