package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// Analyzer is what the HTTP handlers need from the orchestrator.
type Analyzer interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	Preview(ctx context.Context, reportID int64, radiusMeters float64) (*PreviewResult, error)
	Get(ctx context.Context, id uuid.UUID) (*AnalysisDetail, error)
	List(ctx context.Context, filter geostore.AnalysisFilter) ([]AnalysisDetail, error)
}

type Handler struct {
	svc Analyzer
}

func NewHandler(svc Analyzer) *Handler {
	return &Handler{svc: svc}
}

type runRequestBody struct {
	ReportID     int64   `json:"report_id"`
	RadiusMeters float64 `json:"radius_m"`
	Method       *string `json:"method,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type resultOut struct {
	ConcessionID      int64    `json:"concession_id"`
	Intersects        bool     `json:"intersects"`
	MinDistanceMeters *float64 `json:"min_distance"`
}

type hitOut struct {
	ConcessionID      int64    `json:"concession_id"`
	Code              int64    `json:"code"`
	Holder            string   `json:"holder"`
	Kind              string   `json:"kind,omitempty"`
	Region            string   `json:"region,omitempty"`
	Intersects        bool     `json:"intersects"`
	MinDistanceMeters *float64 `json:"min_distance"`
}

type analysisOut struct {
	AnalysisID     uuid.UUID         `json:"analysis_id"`
	ReportID       int64             `json:"report_id"`
	ExecutedAt     time.Time         `json:"executed_at"`
	RadiusMeters   float64           `json:"radius_m"`
	Method         *string           `json:"method"`
	Notes          *string           `json:"notes"`
	Status         string            `json:"status"`
	BufferGeometry *geojson.Geometry `json:"buffer_geometry"`
	Results        []resultOut       `json:"results"`
}

type previewOut struct {
	ReportID       int64             `json:"report_id"`
	RadiusMeters   float64           `json:"radius_m"`
	BufferGeometry *geojson.Geometry `json:"buffer_geometry"`
	Results        []hitOut          `json:"results"`
}

// RunAnalysis executes and persists an analysis for a report.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ReportID <= 0 {
		http.Error(w, "report_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Run(r.Context(), RunRequest{
		ReportID:     body.ReportID,
		RadiusMeters: body.RadiusMeters,
		Method:       body.Method,
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAnalysisOut(res.Analysis, res.Results))
}

// PreviewAnalysis computes an analysis without storing it.
func (h *Handler) PreviewAnalysis(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ReportID <= 0 {
		http.Error(w, "report_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Preview(r.Context(), body.ReportID, body.RadiusMeters)
	if err != nil {
		writeError(w, err)
		return
	}

	out := previewOut{
		ReportID:       res.ReportID,
		RadiusMeters:   res.RadiusMeters,
		BufferGeometry: toGeoJSON(res.Buffer),
		Results:        make([]hitOut, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		out.Results = append(out.Results, hitOut(hit))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAnalysis returns one stored analysis.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "analysis_id"))
	if err != nil {
		http.Error(w, "Invalid analysis id", http.StatusBadRequest)
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisOut(detail.Analysis, detail.Results))
}

// ListAnalyses returns stored analyses, optionally filtered by report and bbox.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	details, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]analysisOut, 0, len(details))
	for _, d := range details {
		out = append(out, toAnalysisOut(d.Analysis, d.Results))
	}
	writeJSON(w, http.StatusOK, out)
}

// AnalysesGeoJSON returns completed analysis buffers as a FeatureCollection
// for map layers.
func (h *Handler) AnalysesGeoJSON(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	details, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, d := range details {
		if !d.Analysis.Complete() {
			continue
		}
		f := geojson.NewFeature(d.Analysis.Buffer)
		f.ID = d.Analysis.ID.String()
		f.Properties["analysis_id"] = d.Analysis.ID.String()
		f.Properties["report_id"] = d.Analysis.ReportID
		f.Properties["radius_m"] = d.Analysis.RadiusMeters
		f.Properties["executed_at"] = d.Analysis.ExecutedAt.Format(time.RFC3339)
		f.Properties["concession_count"] = len(d.Results)
		if d.Analysis.Method != nil {
			f.Properties["method"] = *d.Analysis.Method
		}
		fc.Append(f)
	}

	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(fc)
}

func parseFilter(r *http.Request) (geostore.AnalysisFilter, error) {
	var filter geostore.AnalysisFilter
	q := r.URL.Query()

	if v := q.Get("report_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return filter, errors.New("Invalid report_id")
		}
		filter.ReportID = &id
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, errors.New("Invalid limit")
		}
		filter.Limit = limit
	}

	if v := q.Get("bbox"); v != "" {
		b, err := parseBBox(v)
		if err != nil {
			return filter, err
		}
		filter.BBox = &b
	}

	return filter, nil
}

// parseBBox reads "minLon,minLat,maxLon,maxLat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("Invalid bbox: expected minLon,minLat,maxLon,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("Invalid bbox value %q", p)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min.Lon() > b.Max.Lon() || b.Min.Lat() > b.Max.Lat() ||
		b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return orb.Bound{}, errors.New("Invalid bbox: out of range")
	}
	return b, nil
}

func toAnalysisOut(a geostore.Analysis, results []geostore.AnalysisResult) analysisOut {
	out := analysisOut{
		AnalysisID:     a.ID,
		ReportID:       a.ReportID,
		ExecutedAt:     a.ExecutedAt,
		RadiusMeters:   a.RadiusMeters,
		Method:         a.Method,
		Notes:          a.Notes,
		Status:         "incomplete",
		BufferGeometry: toGeoJSON(a.Buffer),
		Results:        make([]resultOut, 0, len(results)),
	}
	if a.Complete() {
		out.Status = "complete"
	}
	for _, r := range results {
		out.Results = append(out.Results, resultOut{
			ConcessionID:      r.ConcessionID,
			Intersects:        r.Intersects,
			MinDistanceMeters: r.MinDistanceMeters,
		})
	}
	return out
}

func toGeoJSON(g orb.Geometry) *geojson.Geometry {
	if g == nil {
		return nil
	}
	return geojson.NewGeometry(g)
}

// writeError maps engine errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		http.Error(w, unwrapMessage(err), http.StatusBadRequest)
	case errors.Is(err, ErrReportNotFound):
		http.Error(w, "Report not found", http.StatusNotFound)
	case errors.Is(err, geostore.ErrNotFound):
		http.Error(w, "Analysis not found", http.StatusNotFound)
	case errors.Is(err, ErrNoEvidence):
		http.Error(w, "Report has no evidence points yet; submit evidence before running an analysis", http.StatusPreconditionFailed)
	default:
		http.Error(w, "Internal error while running the analysis", http.StatusInternalServerError)
	}
}

// unwrapMessage drops the stage prefix from validation errors.
func unwrapMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
