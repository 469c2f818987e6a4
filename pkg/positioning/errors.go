package positioning

import "errors"

// Configuration errors are fatal to a training/evaluation run and are
// surfaced to the caller without retry.
var (
	// ErrEmptyReferenceSet is returned when no feature rows belong to a
	// reference tag.
	ErrEmptyReferenceSet = errors.New("no reference tag rows available for training")

	// ErrMissingTruth is returned when a reference row lacks true
	// coordinates.
	ErrMissingTruth = errors.New("reference row lacks true coordinates")

	// ErrFeatureCount is returned when the configured feature count does
	// not select a valid prefix of the feature vector.
	ErrFeatureCount = errors.New("feature count out of bounds")

	// ErrDataGap is returned when a selected feature entry is unset. Gaps
	// are never substituted with a sentinel value; the caller must resolve
	// them (wider windows, more antenna coverage) before training.
	ErrDataGap = errors.New("unset value in selected feature prefix")

	// ErrWindowSize is returned when the warm-up or window size is not
	// positive.
	ErrWindowSize = errors.New("window parameters out of range")

	// ErrNeighborCount is returned when the knn model is requested with a
	// non-positive neighbor count.
	ErrNeighborCount = errors.New("knn neighbor count out of range")
)
