package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCorpusUnavailable   = errors.New("corpus unavailable")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrEmptyCategory       = errors.New("empty category")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrDegenerateBaseline  = errors.New("degenerate baseline")
)

type Partition string

const (
	Training Partition = "training"
	Test     Partition = "test"
)

func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case Training, Test:
		return Partition(s), nil
	}
	return "", fmt.Errorf("unknown partition %q", s)
}

// SeriesInfo is one row of the reference table.
type SeriesInfo struct {
	ID        string
	Category  Category
	Frequency int
	Horizon   int
}

// Dataset is the reference table together with one partition's values.
// Values[i] belongs to Series[i].
type Dataset struct {
	Partition Partition
	Series    []SeriesInfo
	Values    [][]float64
}

func (d *Dataset) Len() int { return len(d.Series) }

func (d *Dataset) Categories() []Category {
	out := make([]Category, len(d.Series))
	for i, s := range d.Series {
		out[i] = s.Category
	}
	return out
}

// Evaluation is a stored evaluation run.
type Evaluation struct {
	ID          int64
	Label       string
	EvaluatedAt time.Time
	SeriesCount int
	SMAPEJSON   string
	OWAJSON     string
}
