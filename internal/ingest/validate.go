package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/lox/forecasteval/internal/models"
)

const (
	FlagMissingInsample = "missing_insample"
	FlagShortHistory    = "short_history"
	FlagShortOutsample  = "short_outsample"
	FlagNonPositive     = "non_positive"
	FlagNonFinite       = "non_finite"
)

// ValidateSeries checks one series against its reference metadata and
// returns quality flags. M4 values are strictly positive, so zero or
// negative values are flagged too.
func ValidateSeries(info models.SeriesInfo, insample, outsample []float64) []string {
	var flags []string

	switch {
	case len(insample) == 0:
		flags = append(flags, FlagMissingInsample)
	case len(insample) < info.Frequency+1:
		flags = append(flags, FlagShortHistory)
	}

	if len(outsample) < info.Horizon {
		flags = append(flags, FlagShortOutsample)
	}

	nonPositive, nonFinite := false, false
	for _, seq := range [][]float64{insample, outsample} {
		for _, v := range seq {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				nonFinite = true
			} else if v <= 0 {
				nonPositive = true
			}
		}
	}
	if nonPositive {
		flags = append(flags, FlagNonPositive)
	}
	if nonFinite {
		flags = append(flags, FlagNonFinite)
	}

	return flags
}

// Validate runs ValidateSeries over both cached partitions and returns the
// number of series carrying each flag.
func (b *CacheBuilder) Validate(ctx context.Context, info []models.SeriesInfo) (map[string]int, error) {
	_, train, err := b.store.LoadPartition(ctx, models.Training)
	if err != nil {
		return nil, err
	}
	_, test, err := b.store.LoadPartition(ctx, models.Test)
	if err != nil {
		return nil, err
	}
	if len(train) != len(info) || len(test) != len(info) {
		return nil, fmt.Errorf("%w: cache has %d/%d rows, reference table has %d",
			models.ErrSchemaMismatch, len(train), len(test), len(info))
	}

	counts := make(map[string]int)
	for i, s := range info {
		for _, f := range ValidateSeries(s, train[i], test[i]) {
			counts[f]++
		}
	}
	if len(counts) > 0 {
		log.Printf("ingest: validation flags: %s", QualityFlagsToJSON(counts))
	}
	return counts, nil
}

func QualityFlagsToJSON(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	b, _ := json.Marshal(counts)
	return string(b)
}
