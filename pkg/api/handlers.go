package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/positioning"
)

// handleAntennas serves GET (list) and POST (insert one).
func (s *Server) handleAntennas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		antennas, err := s.store.ListAntennas(r.Context())
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list antennas", err)
			return
		}
		s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"antennas": antennas})
	case http.MethodPost:
		var antenna pkg.Antenna
		if err := json.NewDecoder(r.Body).Decode(&antenna); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid antenna payload", err)
			return
		}
		if antenna.ID == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, "antenna_id is required", nil)
			return
		}
		if err := s.store.InsertAntenna(r.Context(), &antenna); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to insert antenna", err)
			return
		}
		s.sendJSONResponse(w, http.StatusCreated, map[string]string{"message": "antenna inserted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTags serves GET (list, optional ?role=) and POST (insert one).
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		role := pkg.TagRole(r.URL.Query().Get("role"))
		if role != "" && !role.Valid() {
			s.sendErrorResponse(w, http.StatusBadRequest, "role must be ref or tar", nil)
			return
		}
		tags, err := s.store.ListTags(r.Context(), role)
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list tags", err)
			return
		}
		s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"tags": tags})
	case http.MethodPost:
		var tag pkg.Tag
		if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid tag payload", err)
			return
		}
		if err := tag.Validate(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid tag", err)
			return
		}
		if err := s.store.InsertTag(r.Context(), &tag); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to insert tag", err)
			return
		}
		s.sendJSONResponse(w, http.StatusCreated, map[string]string{"message": "tag inserted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// tagReadings mirrors the readings view: all of one tag's observed RSSI
// and read-count values, flattened.
type tagReadings struct {
	TagID  string    `json:"tag_id"`
	RSSI   []float64 `json:"rssi"`
	RC     []int     `json:"rc"`
	IsRead bool      `json:"is_read"`
}

// handleReadings lists the raw readings of every tag with the given role.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	role := pkg.TagRole(r.URL.Query().Get("role"))
	if !role.Valid() {
		s.sendErrorResponse(w, http.StatusBadRequest, "role must be ref or tar", nil)
		return
	}

	tags, err := s.store.ListTags(r.Context(), role)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list tags", err)
		return
	}

	out := make([]tagReadings, 0, len(tags))
	for _, t := range tags {
		readings, err := s.store.ReadingsByTag(r.Context(), t.ID)
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list readings", err)
			return
		}
		tr := tagReadings{TagID: t.ID, RSSI: []float64{}, RC: []int{}, IsRead: t.IsRead}
		for _, reading := range readings {
			tr.RSSI = append(tr.RSSI, reading.RSSI)
			tr.RC = append(tr.RC, reading.ReadCount)
		}
		out = append(out, tr)
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"readings": out})
}

// handlePredictions lists target tags with their predicted coordinates.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tags, err := s.store.ListTags(r.Context(), pkg.RoleTarget)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list target tags", err)
		return
	}
	type prediction struct {
		TagID string   `json:"tag_id"`
		PredX *float64 `json:"pred_x"`
		PredY *float64 `json:"pred_y"`
	}
	out := make([]prediction, 0, len(tags))
	for _, t := range tags {
		out = append(out, prediction{TagID: t.ID, PredX: t.PredX, PredY: t.PredY})
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"predictions": out})
}

// handlePipelineRun triggers one batch run. The JSON body may override any
// of the default parameters.
func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := s.defaults
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid run parameters", err)
			return
		}
	}

	s.runMu.Lock()
	result, err := s.pipeline.Run(r.Context(), params)
	s.runMu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveRun(result, err)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if isConfigurationError(err) {
			status = http.StatusBadRequest
		}
		s.sendErrorResponse(w, status, "pipeline run failed", err)
		return
	}

	if s.history != nil {
		if err := s.history.Save(result); err != nil {
			s.logger.Error("failed to save run history", "run_id", result.RunID, "error", err)
		}
	}
	if s.telemetry != nil {
		s.telemetry.Record("pipeline_run", "pipeline run complete", map[string]interface{}{
			"run_id":            result.RunID,
			"rows":              result.RowCount,
			"predictions_saved": result.PredictionsSaved,
		})
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRunResult(result); err != nil {
			s.logger.Warn("failed to publish run result", "error", err)
		}
		for _, report := range result.Reports {
			if err := s.publisher.PublishPrediction(report); err != nil {
				s.logger.Warn("failed to publish prediction", "tag_id", report.TagID, "error", err)
			}
		}
	}

	s.sendJSONResponse(w, http.StatusOK, result)
}

// handleRuns lists persisted run summaries, most recent first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"runs": []*positioning.RunResult{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}
	runs, err := s.history.List(limit)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleReset clears the whole store.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.store.Reset(r.Context()); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to reset store", err)
		return
	}
	if s.telemetry != nil {
		s.telemetry.Record("store_reset", "all data cleared", nil)
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]string{"message": "all data cleared"})
}

// handleEvents lists recent telemetry events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events := s.telemetry.GetEvents(time.Time{}, limit)
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"events": events})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo reports daemon build and uptime information.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name":     "tagposd",
		"uptime_s": int64(time.Since(s.startTime).Seconds()),
		"defaults": s.defaults,
	})
}
