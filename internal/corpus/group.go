package corpus

import "github.com/lox/forecasteval/internal/models"

// Group returns the entries of values whose category equals target, in their
// original order. values and categories are row-aligned.
func Group[T any](values []T, categories []models.Category, target models.Category) []T {
	var out []T
	for i, c := range categories {
		if c == target && i < len(values) {
			out = append(out, values[i])
		}
	}
	return out
}

// Index holds the row numbers of every category, computed once per corpus.
type Index struct {
	rows  map[models.Category][]int
	total int
}

func NewIndex(categories []models.Category) *Index {
	ix := &Index{
		rows:  make(map[models.Category][]int),
		total: len(categories),
	}
	for i, c := range categories {
		ix.rows[c] = append(ix.rows[c], i)
	}
	return ix
}

// Rows returns the row numbers of category c in ascending order.
func (ix *Index) Rows(c models.Category) []int {
	return ix.rows[c]
}

func (ix *Index) Count(c models.Category) int {
	return len(ix.rows[c])
}

func (ix *Index) Total() int {
	return ix.total
}

// Populations returns the series count of every declared category,
// including the ones with no series.
func (ix *Index) Populations() map[models.Category]int {
	out := make(map[models.Category]int, len(models.Categories))
	for _, r := range models.Categories {
		out[r.Category] = ix.Count(r.Category)
	}
	return out
}

// Select is Group driven by the precomputed index.
func Select[T any](ix *Index, values []T, c models.Category) []T {
	rows := ix.Rows(c)
	out := make([]T, 0, len(rows))
	for _, i := range rows {
		out = append(out, values[i])
	}
	return out
}
