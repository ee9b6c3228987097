package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/forecasteval/internal/corpus"
	"github.com/lox/forecasteval/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.PartitionCounts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{
		Status:      "ok",
		CorpusReady: s.eval != nil,
		Cached:      make(map[string]int, len(counts)),
	}
	for p, n := range counts {
		health.Cached[string(p)] = n
	}
	if s.eval != nil {
		health.SeriesCount = s.eval.SeriesCount()
	} else {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleAPIEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if s.eval == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("%w: value cache not built", models.ErrCorpusUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	forecasts, label, err := s.decodeForecasts(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			writeError(w, http.StatusRequestEntityTooLarge, err)
		case errors.Is(err, models.ErrSchemaMismatch):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusBadRequest, err)
		}
		return
	}

	result, err := s.eval.Evaluate(r.Context(), forecasts)
	if err != nil {
		log.Printf("api: evaluate: %v", err)
		writeError(w, statusFor(err), err)
		return
	}

	resp := EvaluateResponse{Result: result}
	if label != "" {
		rec, err := result.Record(label)
		if err == nil {
			resp.ID, err = s.store.InsertEvaluation(rec)
		}
		if err != nil {
			log.Printf("api: save evaluation %q: %v", label, err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeForecasts reads the forecast table from a JSON or CSV body and
// aligns it with the evaluator's reference table.
func (s *Server) decodeForecasts(r *http.Request) ([][]float64, string, error) {
	series := s.eval.Series()
	query := r.URL.Query()
	label := query.Get("label")
	byID := query.Get("align") == "id"

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req EvaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, "", fmt.Errorf("decode request: %w", err)
		}
		if req.Label != "" {
			label = req.Label
		}
		if req.IDs != nil && len(req.IDs) != len(req.Forecasts) {
			return nil, "", fmt.Errorf("%d ids for %d forecast rows", len(req.IDs), len(req.Forecasts))
		}

		rows := make([]corpus.Row, len(req.Forecasts))
		for i, cells := range req.Forecasts {
			values := make([]float64, len(cells))
			for j, c := range cells {
				if c == nil {
					values[j] = math.NaN()
				} else {
					values[j] = *c
				}
			}
			rows[i].Values = values
			if req.IDs != nil {
				rows[i].ID = req.IDs[i]
			}
		}
		forecasts, err := corpus.Align(rows, series, byID || req.AlignByID)
		return forecasts, label, err
	}

	rows, err := corpus.ReadRows(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read forecast table: %w", err)
	}
	forecasts, err := corpus.Align(rows, series, byID)
	return forecasts, label, err
}

func (s *Server) handleAPIEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 500)
	evals, err := s.store.GetEvaluations(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]EvaluationView, 0, len(evals))
	for _, e := range evals {
		v, err := newEvaluationView(e)
		if err != nil {
			log.Printf("api: decode evaluation %d: %v", e.ID, err)
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/evaluations/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid evaluation id"))
		return
	}
	e, err := s.store.GetEvaluation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("evaluation %d not found", id))
		return
	}
	v, err := newEvaluationView(*e)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAPIIngestRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	failedOnly := r.URL.Query().Get("failed") == "true"

	runs, err := s.store.GetRecentIngestRuns(limit, failedOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]IngestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newIngestRunView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

// statusFor maps evaluation errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrSchemaMismatch), errors.Is(err, models.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCorpusUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
