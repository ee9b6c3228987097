package corpus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lox/forecasteval/internal/models"
)

// ValueStore is the persisted cache of partition values.
type ValueStore interface {
	LoadPartition(ctx context.Context, p models.Partition) ([]string, [][]float64, error)
}

// Accessor loads the reference table and partition values. It never builds
// or refreshes the cache.
type Accessor struct {
	infoPath string
	values   ValueStore

	infoOnce sync.Once
	info     []models.SeriesInfo
	infoErr  error
}

func NewAccessor(infoPath string, values ValueStore) *Accessor {
	return &Accessor{infoPath: infoPath, values: values}
}

// Info returns the reference table, reading it on first use.
func (a *Accessor) Info() ([]models.SeriesInfo, error) {
	a.infoOnce.Do(func() {
		a.info, a.infoErr = ReadInfoFile(a.infoPath)
		if a.infoErr == nil {
			log.Printf("corpus: reference table has %d series", len(a.info))
		}
	})
	return a.info, a.infoErr
}

func (a *Accessor) Load(ctx context.Context, p models.Partition) (*models.Dataset, error) {
	info, err := a.Info()
	if err != nil {
		return nil, fmt.Errorf("load reference table: %w", err)
	}

	ids, values, err := a.values.LoadPartition(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("load %s values: %w", p, err)
	}
	if err := checkAligned(info, ids); err != nil {
		return nil, fmt.Errorf("%s partition: %w", p, err)
	}

	log.Printf("corpus: loaded %s partition (%d series)", p, len(values))
	return &models.Dataset{
		Partition: p,
		Series:    info,
		Values:    values,
	}, nil
}

func checkAligned(info []models.SeriesInfo, ids []string) error {
	if len(ids) != len(info) {
		return fmt.Errorf("%w: %d cached series, reference table has %d", models.ErrSchemaMismatch, len(ids), len(info))
	}
	for i, id := range ids {
		if id != info[i].ID {
			return fmt.Errorf("%w: row %d is %s, reference table has %s", models.ErrSchemaMismatch, i, id, info[i].ID)
		}
	}
	return nil
}
