package store

import (
	"database/sql"
	"time"

	"github.com/lox/forecasteval/internal/models"
)

func (s *Store) InsertEvaluation(e models.Evaluation) (int64, error) {
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO evaluations (label, evaluated_at, series_count, smape_json, owa_json)
		VALUES (?, ?, ?, ?, ?)
	`, e.Label, e.EvaluatedAt, e.SeriesCount, e.SMAPEJSON, e.OWAJSON)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetEvaluations returns stored evaluations, newest first.
func (s *Store) GetEvaluations(limit int) ([]models.Evaluation, error) {
	rows, err := s.db.Query(`
		SELECT id, label, evaluated_at, series_count, smape_json, owa_json
		FROM evaluations
		ORDER BY evaluated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []models.Evaluation
	for rows.Next() {
		var e models.Evaluation
		if err := rows.Scan(&e.ID, &e.Label, &e.EvaluatedAt, &e.SeriesCount, &e.SMAPEJSON, &e.OWAJSON); err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

func (s *Store) GetEvaluation(id int64) (*models.Evaluation, error) {
	var e models.Evaluation
	err := s.db.QueryRow(`
		SELECT id, label, evaluated_at, series_count, smape_json, owa_json
		FROM evaluations WHERE id = ?
	`, id).Scan(&e.ID, &e.Label, &e.EvaluatedAt, &e.SeriesCount, &e.SMAPEJSON, &e.OWAJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
