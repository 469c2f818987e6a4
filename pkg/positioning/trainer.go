package positioning

import (
	"fmt"

	"github.com/rfidlab/tagpos/pkg/fingerprint"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// Model holds the two independently trained coordinate regressors and the
// feature prefix length they were trained with.
type Model struct {
	X            Regressor
	Y            Regressor
	FeatureCount int
}

// Trainer fits the X and Y regressors on reference-tag feature rows.
type Trainer struct {
	factory      RegressorFactory
	featureCount int
	logger       *logx.Logger
}

// NewTrainer creates a trainer selecting the first featureCount entries of
// each feature vector as the regressor input.
func NewTrainer(factory RegressorFactory, featureCount int, logger *logx.Logger) *Trainer {
	return &Trainer{factory: factory, featureCount: featureCount, logger: logger}
}

// Train fits the two regressors on the rows whose tag id is in refTags.
// It fails with a configuration error when the reference subset is empty,
// a reference row lacks true coordinates, or featureCount does not select
// a valid vector prefix. An unset value inside the selected prefix is a
// data-gap error: gaps are surfaced, never replaced by a sentinel.
func (t *Trainer) Train(rows []*fingerprint.FeatureRow, refTags map[string]bool) (*Model, error) {
	if t.featureCount < 1 {
		return nil, fmt.Errorf("%w: %d < 1", ErrFeatureCount, t.featureCount)
	}

	var inputs [][]float64
	var labelsX, labelsY []float64
	for _, row := range rows {
		if !refTags[row.TagID] {
			continue
		}
		if t.featureCount > len(row.Vector) {
			return nil, fmt.Errorf("%w: %d > vector length %d", ErrFeatureCount, t.featureCount, len(row.Vector))
		}
		if row.TrueX == nil || row.TrueY == nil {
			return nil, fmt.Errorf("%w: tag %s at %s", ErrMissingTruth, row.TagID, row.Timestamp)
		}
		input, err := selectPrefix(row, t.featureCount)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
		labelsX = append(labelsX, *row.TrueX)
		labelsY = append(labelsY, *row.TrueY)
	}

	if len(inputs) == 0 {
		return nil, ErrEmptyReferenceSet
	}

	modelX := t.factory()
	if err := modelX.Train(inputs, labelsX); err != nil {
		return nil, fmt.Errorf("failed to train X regressor: %w", err)
	}
	modelY := t.factory()
	if err := modelY.Train(inputs, labelsY); err != nil {
		return nil, fmt.Errorf("failed to train Y regressor: %w", err)
	}

	t.logger.Info("coordinate models trained",
		"reference_rows", len(inputs),
		"feature_count", t.featureCount,
	)
	return &Model{X: modelX, Y: modelY, FeatureCount: t.featureCount}, nil
}

// selectPrefix extracts the first featureCount vector entries, failing on
// any gap.
func selectPrefix(row *fingerprint.FeatureRow, featureCount int) ([]float64, error) {
	input := make([]float64, featureCount)
	for i := 0; i < featureCount; i++ {
		v := row.Vector[i]
		if v == nil {
			return nil, fmt.Errorf("%w: tag %s at %s, column %d", ErrDataGap, row.TagID, row.Timestamp, i)
		}
		input[i] = *v
	}
	return input, nil
}
