package api

import (
	"encoding/json"
	"time"

	"github.com/lox/forecasteval/internal/models"
	"github.com/lox/forecasteval/internal/store"
	"github.com/lox/forecasteval/internal/summary"
)

// EvaluateRequest is the JSON form of an evaluation upload. A null cell is
// read as a missing value.
type EvaluateRequest struct {
	Label     string       `json:"label,omitempty"`
	AlignByID bool         `json:"align_by_id,omitempty"`
	IDs       []string     `json:"ids,omitempty"`
	Forecasts [][]*float64 `json:"forecasts"`
}

// EvaluateResponse wraps a result with its history id when it was saved.
type EvaluateResponse struct {
	ID int64 `json:"id,omitempty"`
	*summary.Result
}

// EvaluationView is a stored evaluation with its summaries decoded.
type EvaluationView struct {
	ID          int64           `json:"id"`
	Label       string          `json:"label"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
	SeriesCount int             `json:"series_count"`
	SMAPE       summary.Summary `json:"smape"`
	OWA         summary.Summary `json:"owa"`
}

func newEvaluationView(e models.Evaluation) (EvaluationView, error) {
	v := EvaluationView{
		ID:          e.ID,
		Label:       e.Label,
		EvaluatedAt: e.EvaluatedAt,
		SeriesCount: e.SeriesCount,
	}
	if err := json.Unmarshal([]byte(e.SMAPEJSON), &v.SMAPE); err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(e.OWAJSON), &v.OWA); err != nil {
		return v, err
	}
	return v, nil
}

// IngestRunView is the JSON form of an ingest run.
type IngestRunView struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Source        string     `json:"source"`
	Target        string     `json:"target"`
	HTTPStatus    *int64     `json:"http_status,omitempty"`
	BytesFetched  *int64     `json:"bytes_fetched,omitempty"`
	RecordsStored *int64     `json:"records_stored,omitempty"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

func newIngestRunView(r store.IngestRun) IngestRunView {
	v := IngestRunView{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		Source:    r.Source,
		Target:    r.Target,
		Success:   r.Success,
		Error:     r.ErrorMessage.String,
	}
	if r.FinishedAt.Valid {
		v.FinishedAt = &r.FinishedAt.Time
	}
	if r.HTTPStatus.Valid {
		v.HTTPStatus = &r.HTTPStatus.Int64
	}
	if r.BytesFetched.Valid {
		v.BytesFetched = &r.BytesFetched.Int64
	}
	if r.RecordsStored.Valid {
		v.RecordsStored = &r.RecordsStored.Int64
	}
	return v
}

// HealthStatus reports whether the server can evaluate.
type HealthStatus struct {
	Status      string         `json:"status"`
	CorpusReady bool           `json:"corpus_ready"`
	SeriesCount int            `json:"series_count"`
	Cached      map[string]int `json:"cached"`
}
