package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	_ "modernc.org/sqlite"

	"github.com/lox/forecasteval/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the sqlite cache at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutPartition replaces every cached sequence of partition p. ids and values
// are row-aligned with the reference table.
func (s *Store) PutPartition(ctx context.Context, p models.Partition, ids []string, values [][]float64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("%w: %d ids for %d sequences", models.ErrSchemaMismatch, len(ids), len(values))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM series_values WHERE partition = ?`, string(p)); err != nil {
		return fmt.Errorf("clear partition %s: %w", p, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series_values (partition, row_index, series_id, n_values, values_blob)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range values {
		blob, err := encodeValues(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ids[i], err)
		}
		if _, err := stmt.ExecContext(ctx, string(p), i, ids[i], len(v), blob); err != nil {
			return fmt.Errorf("insert %s: %w", ids[i], err)
		}
	}

	return tx.Commit()
}

// LoadPartition returns the cached identifiers and sequences of p in row
// order. An empty partition means the cache was never built and is reported
// as ErrCorpusUnavailable.
func (s *Store) LoadPartition(ctx context.Context, p models.Partition) ([]string, [][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, n_values, values_blob
		FROM series_values
		WHERE partition = ?
		ORDER BY row_index ASC
	`, string(p))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrCorpusUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	var values [][]float64
	for rows.Next() {
		var id string
		var n int
		var blob []byte
		if err := rows.Scan(&id, &n, &blob); err != nil {
			return nil, nil, err
		}
		v, err := decodeValues(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", id, err)
		}
		if len(v) != n {
			return nil, nil, fmt.Errorf("%w: %s has %d values, expected %d", models.ErrCorpusUnavailable, id, len(v), n)
		}
		ids = append(ids, id)
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: no cached %s partition", models.ErrCorpusUnavailable, p)
	}
	return ids, values, nil
}

// PartitionCounts returns the number of cached series per partition.
func (s *Store) PartitionCounts() (map[models.Partition]int, error) {
	rows, err := s.db.Query(`SELECT partition, COUNT(*) FROM series_values GROUP BY partition`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Partition]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[models.Partition(p)] = n
	}
	return counts, rows.Err()
}

// encodeValues packs a sequence as gzip-compressed little-endian float64s.
func encodeValues(v []float64) ([]byte, error) {
	raw := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("compress values: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeValues(blob []byte) ([]float64, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(raw))
	}
	v := make([]float64, len(raw)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return v, nil
}
