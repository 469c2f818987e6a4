package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rfidlab/tagpos/pkg"
)

// uploadBody returns the CSV payload of an upload request: the "file" part
// of a multipart form, or the raw body for plain text/csv posts.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		return file, nil
	}
	return r.Body, nil
}

// readCSV parses a CSV stream into a header-index map and data records.
func readCSV(body io.Reader) (map[string]int, [][]string, error) {
	reader := csv.NewReader(body)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) < 1 {
		return nil, nil, fmt.Errorf("csv is empty")
	}
	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[name] = i
	}
	return header, records[1:], nil
}

func field(header map[string]int, record []string, name string) (string, bool) {
	idx, ok := header[name]
	if !ok || idx >= len(record) {
		return "", false
	}
	return record[idx], true
}

func optionalFloat(header map[string]int, record []string, name string) (*float64, error) {
	v, ok := field(header, record, name)
	if !ok || v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	return &f, nil
}

// handleAntennasUpload bulk-imports antennas from CSV with columns
// antenna_id,x,y.
func (s *Server) handleAntennasUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := uploadBody(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid upload", err)
		return
	}
	defer body.Close()

	header, records, err := readCSV(body)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid csv", err)
		return
	}

	inserted := 0
	for i, record := range records {
		id, _ := field(header, record, "antenna_id")
		if id == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d: antenna_id is required", i+1), nil)
			return
		}
		x, err := optionalFloat(header, record, "x")
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d", i+1), err)
			return
		}
		y, err := optionalFloat(header, record, "y")
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d", i+1), err)
			return
		}
		if x == nil || y == nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d: x and y are required", i+1), nil)
			return
		}
		if err := s.store.InsertAntenna(r.Context(), &pkg.Antenna{ID: id, X: *x, Y: *y}); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to insert antenna", err)
			return
		}
		inserted++
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"message": "antennas uploaded", "count": inserted})
}

// handleTagsUpload bulk-imports tags from CSV with columns
// tag_id,role,true_x,true_y (true coordinates optional for targets).
func (s *Server) handleTagsUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := uploadBody(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid upload", err)
		return
	}
	defer body.Close()

	header, records, err := readCSV(body)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid csv", err)
		return
	}

	inserted := 0
	for i, record := range records {
		id, _ := field(header, record, "tag_id")
		role, _ := field(header, record, "role")
		if role == "" {
			// Legacy exports name this column "type".
			role, _ = field(header, record, "type")
		}
		trueX, err := optionalFloat(header, record, "true_x")
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d", i+1), err)
			return
		}
		trueY, err := optionalFloat(header, record, "true_y")
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d", i+1), err)
			return
		}

		tag := &pkg.Tag{ID: id, Role: pkg.TagRole(role), TrueX: trueX, TrueY: trueY}
		if err := tag.Validate(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("row %d", i+1), err)
			return
		}
		if err := s.store.InsertTag(r.Context(), tag); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "failed to insert tag", err)
			return
		}
		inserted++
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"message": "tags uploaded", "count": inserted})
}

// handleExportTags streams the tag table as CSV.
func (s *Server) handleExportTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tags, err := s.store.ListTags(r.Context(), "")
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list tags", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=tags.csv")
	writer := csv.NewWriter(w)
	writer.Write([]string{"tag_id", "role", "true_x", "true_y", "pred_x", "pred_y", "is_read"})
	for _, t := range tags {
		writer.Write([]string{
			t.ID, string(t.Role),
			formatFloat(t.TrueX), formatFloat(t.TrueY),
			formatFloat(t.PredX), formatFloat(t.PredY),
			strconv.FormatBool(t.IsRead),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.logger.Error("failed to stream tags csv", "error", err)
	}
}

// handleExportReadings streams the reading table as CSV.
func (s *Server) handleExportReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	readings, err := s.store.ListReadings(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "failed to list readings", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=readings.csv")
	writer := csv.NewWriter(w)
	writer.Write([]string{"reading_id", "tag_id", "antenna_id", "rc", "rssi", "read_time"})
	for _, reading := range readings {
		writer.Write([]string{
			strconv.FormatInt(reading.ID, 10),
			reading.TagID,
			reading.AntennaID,
			strconv.Itoa(reading.ReadCount),
			strconv.FormatFloat(reading.RSSI, 'f', -1, 64),
			reading.ReadTime.UTC().Format(time.RFC3339Nano),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.logger.Error("failed to stream readings csv", "error", err)
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
