package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lox/forecasteval/internal/corpus"
	"github.com/lox/forecasteval/internal/metrics"
	"github.com/lox/forecasteval/internal/models"
	"github.com/lox/forecasteval/internal/store"
)

// partitionSuffix maps a partition to the file name suffix of its source CSVs.
var partitionSuffix = map[models.Partition]string{
	models.Training: "-train.csv",
	models.Test:     "-test.csv",
}

// CacheBuilder loads the wide per-category CSV files into the value cache.
type CacheBuilder struct {
	store *store.Store
}

func NewCacheBuilder(st *store.Store) *CacheBuilder {
	return &CacheBuilder{store: st}
}

// Build caches both partitions from the files in dir.
func (b *CacheBuilder) Build(ctx context.Context, dir string, info []models.SeriesInfo) error {
	for _, p := range []models.Partition{models.Training, models.Test} {
		if _, err := b.BuildPartition(ctx, dir, p, info); err != nil {
			return err
		}
	}
	return nil
}

// BuildPartition reads every file of partition p in dir and replaces the
// cached partition with rows placed in reference table order. Identifiers
// the files do not mention get an empty sequence. It returns the number of
// non-empty sequences stored.
func (b *CacheBuilder) BuildPartition(ctx context.Context, dir string, p models.Partition, info []models.SeriesInfo) (int, error) {
	files, err := partitionFiles(dir, p)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no %s files in %s", models.ErrCorpusUnavailable, partitionSuffix[p], dir)
	}

	run, err := b.store.StartIngestRun("cache", string(p))
	if err != nil {
		log.Printf("ingest: failed to start cache run: %v", err)
	}

	stored, err := b.buildPartition(ctx, files, p, info)

	if run != nil {
		run.Success = err == nil
		run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: err == nil}
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := b.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("ingest: failed to record run: %v", cerr)
		}
	}
	if err != nil {
		return 0, err
	}

	metrics.SeriesCached.WithLabelValues(string(p)).Add(float64(stored))
	log.Printf("ingest: cached %d/%d %s series from %d files", stored, len(info), p, len(files))
	return stored, nil
}

func (b *CacheBuilder) buildPartition(ctx context.Context, files []string, p models.Partition, info []models.SeriesInfo) (int, error) {
	position := make(map[string]int, len(info))
	ids := make([]string, len(info))
	for i, s := range info {
		position[s.ID] = i
		ids[i] = s.ID
	}

	values := make([][]float64, len(info))
	seen := make([]bool, len(info))
	stored := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rows, err := corpus.ReadRowsFile(file)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", filepath.Base(file), err)
		}
		for _, row := range rows {
			i, ok := position[row.ID]
			if !ok {
				return 0, fmt.Errorf("%w: %s in %s is not in the reference table",
					models.ErrSchemaMismatch, row.ID, filepath.Base(file))
			}
			if seen[i] {
				return 0, fmt.Errorf("%w: %s appears twice in %s files",
					models.ErrSchemaMismatch, row.ID, p)
			}
			seen[i] = true
			values[i] = row.Values
			stored++
		}
	}

	for i := range values {
		if values[i] == nil {
			values[i] = []float64{}
		}
	}

	if err := b.store.PutPartition(ctx, p, ids, values); err != nil {
		return 0, fmt.Errorf("store %s: %w", p, err)
	}
	return stored, nil
}

// partitionFiles lists the source files of p in dir in name order.
func partitionFiles(dir string, p models.Partition) ([]string, error) {
	suffix, ok := partitionSuffix[p]
	if !ok {
		return nil, fmt.Errorf("unknown partition %q", p)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorpusUnavailable, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
