package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/lox/forecasteval/internal/models"
)

// Row is one line of a wide series file: an identifier followed by values.
type Row struct {
	ID     string
	Values []float64
}

// ReadInfo parses the reference table. Columns are located by header name,
// so extra columns (StartingDate, category in M4Info.csv) are ignored.
func ReadInfo(r io.Reader) ([]models.SeriesInfo, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok1 := lookup(col, "m4id", "id")
	spCol, ok2 := lookup(col, "sp", "category")
	freqCol, ok3 := lookup(col, "frequency")
	horCol, ok4 := lookup(col, "horizon")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%w: reference table header %v lacks id, category, frequency or horizon", models.ErrSchemaMismatch, header)
	}
	maxCol := max(idCol, spCol, freqCol, horCol)

	var series []models.SeriesInfo
	seen := make(map[string]int)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference row: %w", err)
		}
		line++
		if len(rec) <= maxCol {
			return nil, fmt.Errorf("%w: reference line %d has %d fields", models.ErrSchemaMismatch, line, len(rec))
		}

		id := strings.TrimSpace(rec[idCol])
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate series %s on lines %d and %d", models.ErrSchemaMismatch, id, prev, line)
		}
		seen[id] = line

		category, err := models.ParseCategory(strings.TrimSpace(rec[spCol]))
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", id, err)
		}
		freq, err := positiveInt(rec[freqCol])
		if err != nil {
			return nil, fmt.Errorf("%w: series %s frequency: %v", models.ErrSchemaMismatch, id, err)
		}
		horizon, err := positiveInt(rec[horCol])
		if err != nil {
			return nil, fmt.Errorf("%w: series %s horizon: %v", models.ErrSchemaMismatch, id, err)
		}

		series = append(series, models.SeriesInfo{
			ID:        id,
			Category:  category,
			Frequency: freq,
			Horizon:   horizon,
		})
	}
	return series, nil
}

// ReadInfoFile is ReadInfo on a path. A missing or unreadable file is
// reported as ErrCorpusUnavailable.
func ReadInfoFile(path string) ([]models.SeriesInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorpusUnavailable, err)
	}
	defer f.Close()
	return ReadInfo(f)
}

// ReadRows parses a wide series file (header row, identifier column, value
// columns). Empty cells and NaN are dropped, so rows come back ragged.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		if len(rec) == 0 {
			continue
		}

		values := make([]float64, 0, len(rec)-1)
		for i, cell := range rec[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			if math.IsNaN(v) {
				continue
			}
			values = append(values, v)
		}
		rows = append(rows, Row{ID: strings.TrimSpace(rec[0]), Values: values})
	}
	return rows, nil
}

func ReadRowsFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

// StripNaN returns a copy of each sequence with NaN entries removed.
func StripNaN(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, v := range values {
		clean := make([]float64, 0, len(v))
		for _, x := range v {
			if !math.IsNaN(x) {
				clean = append(clean, x)
			}
		}
		out[i] = clean
	}
	return out
}

func lookup(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func positiveInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("%d is not positive", v)
	}
	return v, nil
}
