package corpus

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lox/forecasteval/internal/models"
	"github.com/lox/forecasteval/internal/store"
)

const testInfo = `M4id,category,Frequency,Horizon,SP,StartingDate
Y1,Macro,1,6,Yearly,01-01-00 12:00
Q1,Micro,4,8,Quarterly,01-01-00 12:00
Y2,Finance,1,6,Yearly,01-01-00 12:00
H1,Other,24,48,Hourly,01-01-00 12:00
`

func TestReadInfo(t *testing.T) {
	info, err := ReadInfo(strings.NewReader(testInfo))
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if len(info) != 4 {
		t.Fatalf("len(info) = %d, want 4", len(info))
	}

	want := models.SeriesInfo{ID: "H1", Category: models.Hourly, Frequency: 24, Horizon: 48}
	if info[3] != want {
		t.Errorf("info[3] = %+v, want %+v", info[3], want)
	}
	if info[1].Category != models.Quarterly {
		t.Errorf("info[1].Category = %q, want Quarterly (SP column, not domain category)", info[1].Category)
	}
}

func TestReadInfo_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing column", "id,category,frequency\nY1,Yearly,1\n"},
		{"unknown category", "id,category,frequency,horizon\nX1,Fortnightly,1,6\n"},
		{"duplicate id", "id,category,frequency,horizon\nY1,Yearly,1,6\nY1,Yearly,1,6\n"},
		{"zero frequency", "id,category,frequency,horizon\nY1,Yearly,0,6\n"},
		{"bad horizon", "id,category,frequency,horizon\nY1,Yearly,1,six\n"},
		{"short row", "id,category,frequency,horizon\nY1,Yearly\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadInfo(strings.NewReader(tt.input))
			if !errors.Is(err, models.ErrSchemaMismatch) {
				t.Errorf("err = %v, want ErrSchemaMismatch", err)
			}
		})
	}
}

func TestReadInfoFile_Missing(t *testing.T) {
	_, err := ReadInfoFile(filepath.Join(t.TempDir(), "M4Info.csv"))
	if !errors.Is(err, models.ErrCorpusUnavailable) {
		t.Errorf("err = %v, want ErrCorpusUnavailable", err)
	}
}

func TestReadRows(t *testing.T) {
	input := `"V1","V2","V3","V4"
"Y1","1.5","2",""
"Y2","NaN","3","4"
"Y3","","",""
`
	rows, err := ReadRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}

	tests := []struct {
		id   string
		want []float64
	}{
		{"Y1", []float64{1.5, 2}},
		{"Y2", []float64{3, 4}},
		{"Y3", []float64{}},
	}
	for i, tt := range tests {
		if rows[i].ID != tt.id {
			t.Errorf("rows[%d].ID = %q, want %q", i, rows[i].ID, tt.id)
		}
		if len(rows[i].Values) != len(tt.want) {
			t.Errorf("rows[%d] = %v, want %v", i, rows[i].Values, tt.want)
			continue
		}
		for j := range tt.want {
			if rows[i].Values[j] != tt.want[j] {
				t.Errorf("rows[%d][%d] = %v, want %v", i, j, rows[i].Values[j], tt.want[j])
			}
		}
	}
}

func TestReadRows_BadNumber(t *testing.T) {
	_, err := ReadRows(strings.NewReader("id,V1\nY1,abc\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStripNaN(t *testing.T) {
	in := [][]float64{{1, math.NaN(), 2}, {math.NaN()}, nil}
	got := StripNaN(in)
	if len(got[0]) != 2 || got[0][0] != 1 || got[0][1] != 2 {
		t.Errorf("got[0] = %v, want [1 2]", got[0])
	}
	if len(got[1]) != 0 || len(got[2]) != 0 {
		t.Errorf("got = %v", got)
	}
	if len(in[0]) != 3 {
		t.Error("StripNaN modified its input")
	}
}

func TestAlign(t *testing.T) {
	info, err := ReadInfo(strings.NewReader(testInfo))
	if err != nil {
		t.Fatal(err)
	}

	ordered := []Row{{"Y1", []float64{1}}, {"Q1", []float64{2}}, {"Y2", []float64{3}}, {"H1", []float64{4}}}
	shuffled := []Row{{"H1", []float64{4}}, {"Y1", []float64{1}}, {"Y2", []float64{3}}, {"Q1", []float64{2}}}

	t.Run("positional", func(t *testing.T) {
		got, err := Align(ordered, info, false)
		if err != nil {
			t.Fatalf("Align: %v", err)
		}
		for i, want := range []float64{1, 2, 3, 4} {
			if got[i][0] != want {
				t.Errorf("row %d = %v, want %v", i, got[i][0], want)
			}
		}
	})

	t.Run("positional rejects misordered ids", func(t *testing.T) {
		_, err := Align(shuffled, info, false)
		if !errors.Is(err, models.ErrSchemaMismatch) {
			t.Errorf("err = %v, want ErrSchemaMismatch", err)
		}
	})

	t.Run("by id matches positional output", func(t *testing.T) {
		byID, err := Align(shuffled, info, true)
		if err != nil {
			t.Fatalf("Align: %v", err)
		}
		pos, _ := Align(ordered, info, false)
		for i := range pos {
			if byID[i][0] != pos[i][0] {
				t.Errorf("row %d = %v, want %v", i, byID[i][0], pos[i][0])
			}
		}
	})

	t.Run("by id rejects unknown series", func(t *testing.T) {
		rows := append([]Row(nil), ordered...)
		rows[2] = Row{"W9", nil}
		_, err := Align(rows, info, true)
		if !errors.Is(err, models.ErrSchemaMismatch) {
			t.Errorf("err = %v, want ErrSchemaMismatch", err)
		}
	})

	t.Run("row count", func(t *testing.T) {
		_, err := Align(ordered[:3], info, false)
		if !errors.Is(err, models.ErrSchemaMismatch) {
			t.Errorf("err = %v, want ErrSchemaMismatch", err)
		}
	})
}

func TestLoadBaseline(t *testing.T) {
	dir := t.TempDir()
	info, _ := ReadInfo(strings.NewReader(testInfo))

	path := filepath.Join(dir, "submission-Naive2.csv")
	content := "id,F1,F2\nY1,1,2\nQ1,3,\nY2,5,6\nH1,7,8\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadBaseline(path, info, false)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if len(got[1]) != 1 || got[1][0] != 3 {
		t.Errorf("Q1 = %v, want [3]", got[1])
	}

	if _, err := LoadBaseline(filepath.Join(dir, "missing.csv"), info, false); !errors.Is(err, models.ErrCorpusUnavailable) {
		t.Errorf("missing file err = %v, want ErrCorpusUnavailable", err)
	}
}

func TestGroup(t *testing.T) {
	categories := []models.Category{models.Yearly, models.Hourly, models.Yearly, models.Monthly, models.Hourly, models.Yearly}
	values := [][]float64{{0}, {1, 1}, {2}, {3, 3, 3}, {4}, {5}}

	total := 0
	seen := make(map[float64]bool)
	for _, rule := range models.Categories {
		got := Group(values, categories, rule.Category)

		count := 0
		for _, c := range categories {
			if c == rule.Category {
				count++
			}
		}
		if len(got) != count {
			t.Errorf("%s: len = %d, want %d", rule.Category, len(got), count)
		}

		prev := -1.0
		for _, v := range got {
			if v[0] <= prev {
				t.Errorf("%s: order not preserved: %v after %v", rule.Category, v[0], prev)
			}
			prev = v[0]
			if seen[v[0]] {
				t.Errorf("%s: row %v returned twice", rule.Category, v[0])
			}
			seen[v[0]] = true
		}
		total += len(got)
	}
	if total != len(values) {
		t.Errorf("union has %d rows, want %d", total, len(values))
	}

	if got := Group(values, categories, models.Weekly); len(got) != 0 {
		t.Errorf("Weekly = %v, want empty", got)
	}
}

func TestIndexMatchesGroup(t *testing.T) {
	categories := []models.Category{models.Daily, models.Yearly, models.Daily, models.Weekly}
	ids := []string{"D1", "Y1", "D2", "W1"}

	ix := NewIndex(categories)
	if ix.Total() != 4 {
		t.Errorf("Total = %d, want 4", ix.Total())
	}
	pops := ix.Populations()
	if len(pops) != len(models.Categories) {
		t.Errorf("Populations has %d categories, want %d", len(pops), len(models.Categories))
	}
	if pops[models.Daily] != 2 || pops[models.Hourly] != 0 {
		t.Errorf("Populations = %v", pops)
	}

	for _, rule := range models.Categories {
		want := Group(ids, categories, rule.Category)
		got := Select(ix, ids, rule.Category)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%s: Select = %v, Group = %v", rule.Category, got, want)
		}
	}
}

func TestAccessor_Load(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "M4Info.csv")
	if err := os.WriteFile(infoPath, []byte(testInfo), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	acc := NewAccessor(infoPath, st)

	if _, err := acc.Load(ctx, models.Test); !errors.Is(err, models.ErrCorpusUnavailable) {
		t.Fatalf("Load before cache build err = %v, want ErrCorpusUnavailable", err)
	}

	ids := []string{"Y1", "Q1", "Y2", "H1"}
	values := [][]float64{{1, 2}, {3}, {4, 5, 6}, {7}}
	if err := st.PutPartition(ctx, models.Test, ids, values); err != nil {
		t.Fatal(err)
	}

	first, err := acc.Load(ctx, models.Test)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := acc.Load(ctx, models.Test)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, rule := range models.Categories {
		a := Group(first.Values, first.Categories(), rule.Category)
		b := Group(second.Values, second.Categories(), rule.Category)
		if len(a) != len(b) {
			t.Fatalf("%s: %d vs %d rows", rule.Category, len(a), len(b))
		}
		for i := range a {
			if len(a[i]) != len(b[i]) || (len(a[i]) > 0 && a[i][0] != b[i][0]) {
				t.Errorf("%s row %d differs between loads", rule.Category, i)
			}
		}
	}

	yearly := Group(first.Values, first.Categories(), models.Yearly)
	if len(yearly) != 2 || yearly[1][2] != 6 {
		t.Errorf("Yearly = %v", yearly)
	}
}

func TestAccessor_MisalignedCache(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "M4Info.csv")
	if err := os.WriteFile(infoPath, []byte(testInfo), 0644); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.PutPartition(ctx, models.Training, []string{"Q1", "Y1", "Y2", "H1"}, make([][]float64, 4)); err != nil {
		t.Fatal(err)
	}

	_, err = NewAccessor(infoPath, st).Load(ctx, models.Training)
	if !errors.Is(err, models.ErrSchemaMismatch) {
		t.Errorf("err = %v, want ErrSchemaMismatch", err)
	}
}
