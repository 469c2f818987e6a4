package positioning

import (
	"context"
	"fmt"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/fingerprint"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// DataSource is the slice of the reading store the pipeline consumes and
// writes back to.
type DataSource interface {
	ListAntennas(ctx context.Context) ([]*pkg.Antenna, error)
	ListTags(ctx context.Context, role pkg.TagRole) ([]*pkg.Tag, error)
	ListReadings(ctx context.Context) ([]*pkg.Reading, error)
	SavePrediction(ctx context.Context, tagID string, x, y float64) error
}

// Params are the knobs of one pipeline run.
type Params struct {
	WarmupSize   int    `json:"warmup_size"`
	WindowSize   int    `json:"window_size"`
	FeatureCount int    `json:"feature_count"`
	Model        string `json:"model"`
	KNNNeighbors int    `json:"knn_neighbors"`
}

// RunResult is the outcome of one batch positioning run.
type RunResult struct {
	RunID            string       `json:"run_id"`
	StartedAt        time.Time    `json:"started_at"`
	DurationMS       int64        `json:"duration_ms"`
	Params           Params       `json:"params"`
	AntennaCount     int          `json:"antenna_count"`
	ReadingCount     int          `json:"reading_count"`
	RowCount         int          `json:"row_count"`
	TagCount         int          `json:"tag_count"`
	ReferenceTags    int          `json:"reference_tags"`
	PredictionsSaved int          `json:"predictions_saved"`
	Reports          []*TagReport `json:"reports"`
}

// Pipeline runs the full batch computation: assemble fingerprints, extract
// window features, train on reference tags, evaluate all tags and persist
// target predictions. It is a pure function of the store snapshot plus its
// params, so a failed run can simply be retried.
type Pipeline struct {
	source DataSource
	logger *logx.Logger
}

// NewPipeline creates a pipeline over the given data source.
func NewPipeline(source DataSource, logger *logx.Logger) *Pipeline {
	return &Pipeline{source: source, logger: logger}
}

// Run executes one batch run.
func (p *Pipeline) Run(ctx context.Context, params Params) (*RunResult, error) {
	started := time.Now()
	runID := fmt.Sprintf("run-%s", started.UTC().Format("20060102T150405.000000000Z"))

	factory, err := NewRegressorFactory(params.Model, params.KNNNeighbors)
	if err != nil {
		return nil, err
	}
	extractor, err := fingerprint.NewExtractor(params.WarmupSize, params.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWindowSize, err)
	}

	antennas, err := p.source.ListAntennas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list antennas: %w", err)
	}
	tags, err := p.source.ListTags(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	readings, err := p.source.ListReadings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}

	assembler := fingerprint.NewAssembler(antennas, tags, p.logger)
	fingerprints := assembler.Assemble(readings)
	features := extractor.Extract(fingerprints, len(assembler.Axis()))

	refTags := make(map[string]bool)
	targetTags := make(map[string]bool)
	for _, t := range tags {
		switch t.Role {
		case pkg.RoleReference:
			refTags[t.ID] = true
		case pkg.RoleTarget:
			targetTags[t.ID] = true
		}
	}

	trainer := NewTrainer(factory, params.FeatureCount, p.logger)
	model, err := trainer.Train(features, refTags)
	if err != nil {
		return nil, err
	}

	_, reports, err := NewEvaluator(p.logger).Evaluate(features, model)
	if err != nil {
		return nil, err
	}

	saved := 0
	for _, report := range reports {
		if !targetTags[report.TagID] {
			continue
		}
		if err := p.source.SavePrediction(ctx, report.TagID, report.PredX, report.PredY); err != nil {
			return nil, fmt.Errorf("failed to persist prediction for tag %s: %w", report.TagID, err)
		}
		saved++
	}

	result := &RunResult{
		RunID:            runID,
		StartedAt:        started.UTC(),
		DurationMS:       time.Since(started).Milliseconds(),
		Params:           params,
		AntennaCount:     len(antennas),
		ReadingCount:     len(readings),
		RowCount:         len(features),
		TagCount:         len(tags),
		ReferenceTags:    len(refTags),
		PredictionsSaved: saved,
		Reports:          reports,
	}

	p.logger.Info("pipeline run complete",
		"run_id", result.RunID,
		"rows", result.RowCount,
		"tags", result.TagCount,
		"predictions_saved", result.PredictionsSaved,
		"duration_ms", result.DurationMS,
	)
	return result, nil
}
