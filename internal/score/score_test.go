package score

import (
	"errors"
	"math"
	"testing"

	"github.com/lox/forecasteval/internal/models"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSMAPE(t *testing.T) {
	tests := []struct {
		name     string
		forecast []float64
		target   []float64
		want     []float64
	}{
		{"exact", []float64{1, 2, 3}, []float64{1, 2, 3}, []float64{0, 0, 0}},
		{"both zero", []float64{0}, []float64{0}, []float64{0}},
		{"zero target", []float64{5}, []float64{0}, []float64{200}},
		{"half off", []float64{10}, []float64{20}, []float64{200 * 10.0 / 30.0}},
		{"negative values", []float64{-1}, []float64{1}, []float64{200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SMAPE(tt.forecast, tt.target)
			if err != nil {
				t.Fatalf("SMAPE: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !approxEqual(got[i], tt.want[i], 1e-12) {
					t.Errorf("point %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSMAPE_LengthMismatch(t *testing.T) {
	_, err := SMAPE([]float64{1, 2}, []float64{1})
	if !errors.Is(err, models.ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestSeriesSMAPE_NonNegativeAndScaleInvariant(t *testing.T) {
	forecast := []float64{12, 7, 0, 3.5, 100}
	target := []float64{10, 9, 0, 4, 80}

	base, err := SeriesSMAPE(forecast, target)
	if err != nil {
		t.Fatal(err)
	}
	if base < 0 {
		t.Fatalf("SeriesSMAPE = %v, want non-negative", base)
	}

	for _, k := range []float64{0.001, 3, 1e6} {
		f := make([]float64, len(forecast))
		y := make([]float64, len(target))
		for i := range forecast {
			f[i] = forecast[i] * k
			y[i] = target[i] * k
		}
		got, err := SeriesSMAPE(f, y)
		if err != nil {
			t.Fatal(err)
		}
		if !approxEqual(got, base, 1e-9) {
			t.Errorf("scaled by %v: SeriesSMAPE = %v, want %v", k, got, base)
		}
	}
}

func TestSeasonalScale(t *testing.T) {
	tests := []struct {
		name      string
		insample  []float64
		frequency int
		want      float64
	}{
		{"lag one", []float64{1, 3, 6, 10}, 1, 3},
		{"lag two", []float64{1, 2, 5, 4, 9}, 2, (4.0 + 2 + 4) / 3},
		{"flat", []float64{5, 5, 5}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SeasonalScale(tt.insample, tt.frequency)
			if err != nil {
				t.Fatalf("SeasonalScale: %v", err)
			}
			if !approxEqual(got, tt.want, 1e-12) {
				t.Errorf("SeasonalScale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeasonalScale_InsufficientHistory(t *testing.T) {
	tests := []struct {
		insample  []float64
		frequency int
	}{
		{nil, 1},
		{[]float64{1}, 1},
		{make([]float64, 12), 12},
	}
	for _, tt := range tests {
		_, err := SeasonalScale(tt.insample, tt.frequency)
		if !errors.Is(err, models.ErrInsufficientHistory) {
			t.Errorf("SeasonalScale(len %d, freq %d) err = %v, want ErrInsufficientHistory", len(tt.insample), tt.frequency, err)
		}
	}
	if _, err := SeasonalScale(make([]float64, 13), 12); err != nil {
		t.Errorf("SeasonalScale(len 13, freq 12) err = %v, want nil", err)
	}
}

func TestMASE_EqualsMAEOverScale(t *testing.T) {
	insample := []float64{10, 12, 11, 15, 14, 18}
	outsample := []float64{19, 20, 22}
	forecast := []float64{18, 21, 20}

	got, err := MASE(insample, outsample, forecast, 1)
	if err != nil {
		t.Fatal(err)
	}
	mae, _ := MAE(forecast, outsample)
	scale, _ := SeasonalScale(insample, 1)
	if !approxEqual(got, mae/scale, 1e-12) {
		t.Errorf("MASE = %v, want %v", got, mae/scale)
	}
	if !approxEqual(got, (4.0/3.0)/(12.0/5.0), 1e-12) {
		t.Errorf("MASE = %v, want %v", got, (4.0/3.0)/(12.0/5.0))
	}
}

func TestMASE_DecreasesWithError(t *testing.T) {
	insample := []float64{1, 4, 2, 6, 3, 7, 5, 9}
	outsample := []float64{10, 11, 12}

	prev := math.Inf(1)
	for _, offset := range []float64{4, 2, 1, 0.5, 0} {
		forecast := []float64{10 + offset, 11 + offset, 12 + offset}
		got, err := MASE(insample, outsample, forecast, 2)
		if err != nil {
			t.Fatal(err)
		}
		if got >= prev {
			t.Errorf("offset %v: MASE = %v, want < %v", offset, got, prev)
		}
		prev = got
	}
	if prev != 0 {
		t.Errorf("exact forecast MASE = %v, want 0", prev)
	}
}

func TestMASE_FlatInsample(t *testing.T) {
	got, err := MASE([]float64{3, 3, 3}, []float64{4}, []float64{5}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(got, 1) {
		t.Errorf("MASE = %v, want +Inf", got)
	}
}

func TestMean(t *testing.T) {
	got, err := Mean([]float64{1, 2, 6})
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("Mean = %v, want 3", got)
	}

	if _, err := Mean(nil); !errors.Is(err, models.ErrEmptyCategory) {
		t.Errorf("Mean(nil) err = %v, want ErrEmptyCategory", err)
	}
}

func TestSeriesError(t *testing.T) {
	err := error(&SeriesError{ID: "Y1", Category: models.Yearly, Err: models.ErrInsufficientHistory})
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Error("expected SeriesError to unwrap to ErrInsufficientHistory")
	}
	var se *SeriesError
	if !errors.As(err, &se) || se.ID != "Y1" {
		t.Errorf("errors.As = %+v, want series Y1", se)
	}
	if got := err.Error(); got != "series Y1 (Yearly): insufficient history" {
		t.Errorf("Error() = %q", got)
	}
}
