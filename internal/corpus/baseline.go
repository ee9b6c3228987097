package corpus

import (
	"fmt"
	"log"

	"github.com/lox/forecasteval/internal/models"
)

// Align places rows in reference-table order.
//
// By default rows are taken positionally, the way the Naive2 submission
// has always been consumed, and an identifier that disagrees with the
// reference row at the same position is rejected rather than silently
// misaligned. With byID the rows are matched on identifier instead.
func Align(rows []Row, info []models.SeriesInfo, byID bool) ([][]float64, error) {
	if len(rows) != len(info) {
		return nil, fmt.Errorf("%w: %d rows, reference table has %d", models.ErrSchemaMismatch, len(rows), len(info))
	}

	out := make([][]float64, len(info))
	if !byID {
		for i, r := range rows {
			if r.ID != "" && r.ID != info[i].ID {
				return nil, fmt.Errorf("%w: row %d is %s, reference table has %s", models.ErrSchemaMismatch, i, r.ID, info[i].ID)
			}
			out[i] = r.Values
		}
		return out, nil
	}

	pos := make(map[string]int, len(info))
	for i, s := range info {
		pos[s.ID] = i
	}
	filled := make([]bool, len(info))
	for _, r := range rows {
		i, ok := pos[r.ID]
		if !ok {
			return nil, fmt.Errorf("%w: series %s not in reference table", models.ErrSchemaMismatch, r.ID)
		}
		if filled[i] {
			return nil, fmt.Errorf("%w: series %s appears twice", models.ErrSchemaMismatch, r.ID)
		}
		out[i] = r.Values
		filled[i] = true
	}
	return out, nil
}

// LoadBaseline reads the baseline forecast table and aligns it with the
// reference table.
func LoadBaseline(path string, info []models.SeriesInfo, byID bool) ([][]float64, error) {
	rows, err := ReadRowsFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline: %v", models.ErrCorpusUnavailable, err)
	}
	values, err := Align(rows, info, byID)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	log.Printf("corpus: loaded baseline forecasts for %d series", len(values))
	return values, nil
}
