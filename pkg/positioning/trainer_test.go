package positioning

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/fingerprint"
	"github.com/rfidlab/tagpos/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.NewLogger("error", "test")
}

func featureRow(tagID string, sec int, trueX, trueY *float64, vector ...*float64) *fingerprint.FeatureRow {
	return &fingerprint.FeatureRow{
		TagID:     tagID,
		Timestamp: time.Date(2025, 3, 1, 12, 0, sec, 0, time.UTC),
		TrueX:     trueX,
		TrueY:     trueY,
		Vector:    vector,
	}
}

// constantRegressor always predicts the same value.
type constantRegressor struct {
	value float64
}

func (r constantRegressor) Train(inputs [][]float64, labels []float64) error { return nil }

func (r constantRegressor) Predict(input []float64) (float64, error) { return r.value, nil }

func knnFactory(t *testing.T) RegressorFactory {
	t.Helper()
	factory, err := NewRegressorFactory("knn", 3)
	if err != nil {
		t.Fatalf("failed to create factory: %v", err)
	}
	return factory
}

func TestNewRegressorFactory(t *testing.T) {
	for _, model := range []string{"knn", "linear"} {
		if _, err := NewRegressorFactory(model, 3); err != nil {
			t.Errorf("model %q rejected: %v", model, err)
		}
	}
	if _, err := NewRegressorFactory("forest", 3); err == nil {
		t.Error("expected error for unknown model name")
	}
	for _, k := range []int{0, -1} {
		if _, err := NewRegressorFactory("knn", k); !errors.Is(err, ErrNeighborCount) {
			t.Errorf("knn with k=%d: expected ErrNeighborCount, got %v", k, err)
		}
	}
	// The linear model ignores the neighbor count.
	if _, err := NewRegressorFactory("linear", 0); err != nil {
		t.Errorf("linear with k=0 rejected: %v", err)
	}
}

func TestTrainer_Train(t *testing.T) {
	refRows := []*fingerprint.FeatureRow{
		featureRow("ref1", 0, pkg.Float(0), pkg.Float(0), pkg.Float(-50), pkg.Float(1)),
		featureRow("ref2", 0, pkg.Float(2), pkg.Float(2), pkg.Float(-60), pkg.Float(1)),
	}
	refTags := map[string]bool{"ref1": true, "ref2": true}

	t.Run("trains on reference rows only", func(t *testing.T) {
		rows := append([]*fingerprint.FeatureRow{
			featureRow("target", 0, nil, nil, pkg.Float(-55), pkg.Float(1)),
		}, refRows...)
		model, err := NewTrainer(knnFactory(t), 2, testLogger()).Train(rows, refTags)
		if err != nil {
			t.Fatalf("train failed: %v", err)
		}
		if model.FeatureCount != 2 {
			t.Errorf("expected feature count 2, got %d", model.FeatureCount)
		}
		x, err := model.X.Predict([]float64{-50, 1})
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if x > 1 {
			t.Errorf("expected prediction near ref1's x=0, got %v", x)
		}
	})

	t.Run("empty reference subset", func(t *testing.T) {
		_, err := NewTrainer(knnFactory(t), 2, testLogger()).Train(refRows, map[string]bool{})
		if !errors.Is(err, ErrEmptyReferenceSet) {
			t.Errorf("expected ErrEmptyReferenceSet, got %v", err)
		}
	})

	t.Run("feature count below one", func(t *testing.T) {
		_, err := NewTrainer(knnFactory(t), 0, testLogger()).Train(refRows, refTags)
		if !errors.Is(err, ErrFeatureCount) {
			t.Errorf("expected ErrFeatureCount, got %v", err)
		}
	})

	t.Run("feature count beyond vector length", func(t *testing.T) {
		_, err := NewTrainer(knnFactory(t), 3, testLogger()).Train(refRows, refTags)
		if !errors.Is(err, ErrFeatureCount) {
			t.Errorf("expected ErrFeatureCount, got %v", err)
		}
	})

	t.Run("reference row without truth", func(t *testing.T) {
		rows := []*fingerprint.FeatureRow{
			featureRow("ref1", 0, pkg.Float(0), nil, pkg.Float(-50), pkg.Float(1)),
		}
		_, err := NewTrainer(knnFactory(t), 2, testLogger()).Train(rows, refTags)
		if !errors.Is(err, ErrMissingTruth) {
			t.Errorf("expected ErrMissingTruth, got %v", err)
		}
	})

	t.Run("gap inside feature prefix", func(t *testing.T) {
		rows := []*fingerprint.FeatureRow{
			featureRow("ref1", 0, pkg.Float(0), pkg.Float(0), pkg.Float(-50), nil),
		}
		_, err := NewTrainer(knnFactory(t), 2, testLogger()).Train(rows, refTags)
		if !errors.Is(err, ErrDataGap) {
			t.Errorf("expected ErrDataGap, got %v", err)
		}
	})

	t.Run("gap beyond feature prefix is ignored", func(t *testing.T) {
		rows := []*fingerprint.FeatureRow{
			featureRow("ref1", 0, pkg.Float(0), pkg.Float(0), pkg.Float(-50), nil),
			featureRow("ref2", 0, pkg.Float(2), pkg.Float(2), pkg.Float(-60), nil),
		}
		if _, err := NewTrainer(knnFactory(t), 1, testLogger()).Train(rows, refTags); err != nil {
			t.Errorf("expected gap outside prefix to be ignored, got %v", err)
		}
	})
}

func TestEvaluator_Evaluate(t *testing.T) {
	factory := knnFactory(t)
	refTags := map[string]bool{"ref1": true, "ref2": true}
	rows := []*fingerprint.FeatureRow{
		featureRow("ref1", 0, pkg.Float(0), pkg.Float(0), pkg.Float(-50), pkg.Float(1)),
		featureRow("ref2", 0, pkg.Float(4), pkg.Float(4), pkg.Float(-60), pkg.Float(1)),
		featureRow("target", 0, nil, nil, pkg.Float(-50), pkg.Float(1)),
		featureRow("target", 1, nil, nil, pkg.Float(-50), pkg.Float(1)),
	}

	model, err := NewTrainer(factory, 2, testLogger()).Train(rows, refTags)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	predictions, reports, err := NewEvaluator(testLogger()).Evaluate(rows, model)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	t.Run("one prediction per row", func(t *testing.T) {
		if len(predictions) != len(rows) {
			t.Fatalf("expected %d row predictions, got %d", len(rows), len(predictions))
		}
	})

	t.Run("one report per tag in first-seen order", func(t *testing.T) {
		if len(reports) != 3 {
			t.Fatalf("expected 3 reports, got %d", len(reports))
		}
		for i, want := range []string{"ref1", "ref2", "target"} {
			if reports[i].TagID != want {
				t.Errorf("report %d: got tag %s, want %s", i, reports[i].TagID, want)
			}
		}
	})

	t.Run("reference tags score zero error on exact feature match", func(t *testing.T) {
		for _, report := range reports[:2] {
			if report.MAEX == nil || report.MAEY == nil || report.MAEAvg == nil {
				t.Fatalf("tag %s: expected error metrics, got none", report.TagID)
			}
			if *report.MAEX != 0 || *report.MAEY != 0 || *report.MAEAvg != 0 {
				t.Errorf("tag %s: expected zero error, got x=%v y=%v avg=%v",
					report.TagID, *report.MAEX, *report.MAEY, *report.MAEAvg)
			}
		}
	})

	t.Run("tags without truth carry no error metrics", func(t *testing.T) {
		target := reports[2]
		if target.MAEX != nil || target.MAEY != nil || target.MAEAvg != nil {
			t.Error("expected no error metrics for tag without ground truth")
		}
		if target.Rows != 2 {
			t.Errorf("expected 2 rows for target, got %d", target.Rows)
		}
		// Both target rows match ref1's features exactly; the far neighbor
		// contributes a vanishing inverse-distance weight.
		if math.Abs(target.PredX) > 1e-6 || math.Abs(target.PredY) > 1e-6 {
			t.Errorf("expected target prediction near (0,0), got (%v,%v)", target.PredX, target.PredY)
		}
	})

	t.Run("mae average computed before rounding", func(t *testing.T) {
		// Per-axis errors of 0.00006 and 0.00003 round to 0.0001 and 0,
		// but their true average 0.000045 rounds to 0.
		fixed := &Model{
			X:            constantRegressor{0.00006},
			Y:            constantRegressor{0.00003},
			FeatureCount: 2,
		}
		rows := []*fingerprint.FeatureRow{
			featureRow("ref1", 0, pkg.Float(0), pkg.Float(0), pkg.Float(-50), pkg.Float(1)),
		}
		_, reports, err := NewEvaluator(testLogger()).Evaluate(rows, fixed)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		report := reports[0]
		if *report.MAEX != 0.0001 || *report.MAEY != 0 {
			t.Fatalf("unexpected per-axis errors: x=%v y=%v", *report.MAEX, *report.MAEY)
		}
		if *report.MAEAvg != 0 {
			t.Errorf("expected average 0, got %v", *report.MAEAvg)
		}
	})

	t.Run("gap inside prefix fails evaluation", func(t *testing.T) {
		bad := []*fingerprint.FeatureRow{
			featureRow("target", 0, nil, nil, nil, pkg.Float(1)),
		}
		_, _, err := NewEvaluator(testLogger()).Evaluate(bad, model)
		if !errors.Is(err, ErrDataGap) {
			t.Errorf("expected ErrDataGap, got %v", err)
		}
	})
}
