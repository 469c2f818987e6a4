package positioning

import (
	"fmt"
	"math"
	"time"

	"github.com/rfidlab/tagpos/pkg/fingerprint"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// RowPrediction is the predicted coordinate pair for one feature row.
type RowPrediction struct {
	TagID     string    `json:"tag_id"`
	Timestamp time.Time `json:"timestamp"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
}

// TagReport summarizes one tag's evaluation: the persisted prediction (the
// mean of its row predictions) and, when ground truth exists, the mean
// absolute error per axis and their average.
type TagReport struct {
	TagID  string   `json:"tag_id"`
	Rows   int      `json:"rows"`
	PredX  float64  `json:"pred_x"`
	PredY  float64  `json:"pred_y"`
	MAEX   *float64 `json:"mae_x,omitempty"`
	MAEY   *float64 `json:"mae_y,omitempty"`
	MAEAvg *float64 `json:"mae_avg,omitempty"`
}

// Evaluator scores every tag's rows against a trained model.
type Evaluator struct {
	logger *logx.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(logger *logx.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate predicts X and Y for every row using the same feature prefix
// the model was trained with, in each tag's chronological order, and
// builds one report per tag. Rows arrive ordered by timestamp then tag id
// (the extractor's contract), so per-tag grouping preserves chronology.
func (e *Evaluator) Evaluate(rows []*fingerprint.FeatureRow, model *Model) ([]RowPrediction, []*TagReport, error) {
	byTag := make(map[string][]*fingerprint.FeatureRow)
	var order []string
	for _, row := range rows {
		if _, seen := byTag[row.TagID]; !seen {
			order = append(order, row.TagID)
		}
		byTag[row.TagID] = append(byTag[row.TagID], row)
	}

	var predictions []RowPrediction
	var reports []*TagReport
	for _, tagID := range order {
		tagRows := byTag[tagID]
		report, rowPreds, err := e.evaluateTag(tagID, tagRows, model)
		if err != nil {
			return nil, nil, err
		}
		predictions = append(predictions, rowPreds...)
		reports = append(reports, report)
	}
	return predictions, reports, nil
}

func (e *Evaluator) evaluateTag(tagID string, tagRows []*fingerprint.FeatureRow, model *Model) (*TagReport, []RowPrediction, error) {
	var rowPreds []RowPrediction
	var sumX, sumY float64
	var absErrX, absErrY float64
	truthRows := 0

	for _, row := range tagRows {
		input, err := selectPrefix(row, model.FeatureCount)
		if err != nil {
			return nil, nil, err
		}
		predX, err := model.X.Predict(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to predict X for tag %s: %w", tagID, err)
		}
		predY, err := model.Y.Predict(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to predict Y for tag %s: %w", tagID, err)
		}
		rowPreds = append(rowPreds, RowPrediction{
			TagID:     tagID,
			Timestamp: row.Timestamp,
			X:         predX,
			Y:         predY,
		})
		sumX += predX
		sumY += predY

		if row.TrueX != nil && row.TrueY != nil {
			absErrX += math.Abs(predX - *row.TrueX)
			absErrY += math.Abs(predY - *row.TrueY)
			truthRows++
		}
	}

	n := float64(len(tagRows))
	report := &TagReport{
		TagID: tagID,
		Rows:  len(tagRows),
		PredX: sumX / n,
		PredY: sumY / n,
	}
	if truthRows > 0 {
		// The average is taken over the unrounded per-axis errors.
		rawX := absErrX / float64(truthRows)
		rawY := absErrY / float64(truthRows)
		maeX := roundReport(rawX)
		maeY := roundReport(rawY)
		maeAvg := roundReport((rawX + rawY) / 2)
		report.MAEX = &maeX
		report.MAEY = &maeY
		report.MAEAvg = &maeAvg
	}
	return report, rowPreds, nil
}

func roundReport(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
