package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lox/forecasteval/internal/corpus"
	"github.com/lox/forecasteval/internal/metrics"
	"github.com/lox/forecasteval/internal/models"
	"github.com/lox/forecasteval/internal/score"
)

// Result holds the reported summaries and the unrounded components the
// OWA summary was derived from.
type Result struct {
	SMAPE       Summary    `json:"smape"`
	OWA         Summary    `json:"owa"`
	Components  Components `json:"components"`
	SeriesCount int        `json:"series_count"`
}

type Components struct {
	ModelSMAPE Summary `json:"model_smape"`
	ModelMASE  Summary `json:"model_mase"`
	NaiveSMAPE Summary `json:"naive_smape"`
	NaiveMASE  Summary `json:"naive_mase"`
}

// Record converts r into a history row under label.
func (r *Result) Record(label string) (models.Evaluation, error) {
	smape, err := json.Marshal(r.SMAPE)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("marshal sMAPE: %w", err)
	}
	owa, err := json.Marshal(r.OWA)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("marshal OWA: %w", err)
	}
	return models.Evaluation{
		Label:       label,
		SeriesCount: r.SeriesCount,
		SMAPEJSON:   string(smape),
		OWAJSON:     string(owa),
	}, nil
}

// Evaluator scores forecasts against one loaded corpus. It is immutable
// after construction and safe for concurrent use.
type Evaluator struct {
	train    *models.Dataset
	test     *models.Dataset
	baseline [][]float64
	index    *corpus.Index

	naiveSMAPE Summary
	naiveMASE  Summary
}

// NewEvaluator prepares an evaluator and scores the baseline once.
func NewEvaluator(train, test *models.Dataset, baseline [][]float64) (*Evaluator, error) {
	if train.Len() != test.Len() {
		return nil, fmt.Errorf("%w: training has %d series, test has %d", models.ErrSchemaMismatch, train.Len(), test.Len())
	}
	if len(baseline) != test.Len() {
		return nil, fmt.Errorf("%w: baseline has %d series, test has %d", models.ErrSchemaMismatch, len(baseline), test.Len())
	}

	e := &Evaluator{
		train:    train,
		test:     test,
		baseline: corpus.StripNaN(baseline),
		index:    corpus.NewIndex(test.Categories()),
	}

	smapes, mases, err := e.scoreAll(context.Background(), e.baseline)
	if err != nil {
		return nil, fmt.Errorf("score baseline: %w", err)
	}
	pops := e.index.Populations()
	if e.naiveSMAPE, err = Summarize(smapes, pops); err != nil {
		return nil, fmt.Errorf("summarize baseline sMAPE: %w", err)
	}
	if e.naiveMASE, err = Summarize(mases, pops); err != nil {
		return nil, fmt.Errorf("summarize baseline MASE: %w", err)
	}
	return e, nil
}

// Load reads both partitions and the baseline table and builds an evaluator.
func Load(ctx context.Context, acc *corpus.Accessor, baselinePath string, alignByID bool) (*Evaluator, error) {
	train, err := acc.Load(ctx, models.Training)
	if err != nil {
		return nil, err
	}
	test, err := acc.Load(ctx, models.Test)
	if err != nil {
		return nil, err
	}
	baseline, err := corpus.LoadBaseline(baselinePath, test.Series, alignByID)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(train, test, baseline)
}

func (e *Evaluator) SeriesCount() int { return e.test.Len() }

// Series returns the reference table the evaluator was loaded with.
func (e *Evaluator) Series() []models.SeriesInfo { return e.test.Series }

// Evaluate scores forecasts, row-aligned with the test partition, and
// returns the rounded sMAPE and OWA summaries.
func (e *Evaluator) Evaluate(ctx context.Context, forecasts [][]float64) (res *Result, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.EvaluationsTotal.WithLabelValues(status).Inc()
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	if len(forecasts) != e.test.Len() {
		return nil, fmt.Errorf("%w: %d forecast rows, test partition has %d", models.ErrSchemaMismatch, len(forecasts), e.test.Len())
	}
	forecasts = corpus.StripNaN(forecasts)

	smapes, mases, err := e.scoreAll(ctx, forecasts)
	if err != nil {
		return nil, err
	}

	pops := e.index.Populations()
	modelSMAPE, err := Summarize(smapes, pops)
	if err != nil {
		return nil, fmt.Errorf("summarize sMAPE: %w", err)
	}
	modelMASE, err := Summarize(mases, pops)
	if err != nil {
		return nil, fmt.Errorf("summarize MASE: %w", err)
	}
	owa, err := Combine(modelMASE, e.naiveMASE, modelSMAPE, e.naiveSMAPE)
	if err != nil {
		return nil, err
	}

	log.Printf("evaluate: scored %d series in %s", e.test.Len(), time.Since(start).Round(time.Millisecond))
	return &Result{
		SMAPE: modelSMAPE.Rounded(),
		OWA:   owa.Rounded(),
		Components: Components{
			ModelSMAPE: modelSMAPE,
			ModelMASE:  modelMASE,
			NaiveSMAPE: e.naiveSMAPE,
			NaiveMASE:  e.naiveMASE,
		},
		SeriesCount: e.test.Len(),
	}, nil
}

// scoreAll returns the per-category mean sMAPE and MASE of forecasts.
func (e *Evaluator) scoreAll(ctx context.Context, forecasts [][]float64) (map[models.Category]float64, map[models.Category]float64, error) {
	smapes := make(map[models.Category]float64)
	mases := make(map[models.Category]float64)

	for _, rule := range models.Categories {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rows := e.index.Rows(rule.Category)
		if len(rows) == 0 {
			continue
		}

		seriesSMAPE := make([]float64, 0, len(rows))
		seriesMASE := make([]float64, 0, len(rows))
		for _, i := range rows {
			info := e.test.Series[i]
			s, err := score.SeriesSMAPE(forecasts[i], e.test.Values[i])
			if err != nil {
				return nil, nil, &score.SeriesError{ID: info.ID, Category: info.Category, Err: err}
			}
			m, err := score.MASE(e.train.Values[i], e.test.Values[i], forecasts[i], info.Frequency)
			if err != nil {
				return nil, nil, &score.SeriesError{ID: info.ID, Category: info.Category, Err: err}
			}
			seriesSMAPE = append(seriesSMAPE, s)
			seriesMASE = append(seriesMASE, m)
		}

		var err error
		if smapes[rule.Category], err = score.Mean(seriesSMAPE); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", rule.Category, err)
		}
		if mases[rule.Category], err = score.Mean(seriesMASE); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", rule.Category, err)
		}
		metrics.SeriesScored.WithLabelValues(string(rule.Category)).Add(float64(len(rows)))
	}
	return smapes, mases, nil
}
