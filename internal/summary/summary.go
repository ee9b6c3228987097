package summary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/lox/forecasteval/internal/models"
)

// Entry is one reported bucket.
type Entry struct {
	Bucket string
	Value  float64
}

// Summary is an ordered report: the major categories in declared order,
// then Others, then Average.
type Summary []Entry

// Buckets returns the report keys in order.
func Buckets() []string {
	var out []string
	for _, c := range models.CategoriesWithRole(models.Major) {
		out = append(out, string(c))
	}
	return append(out, models.BucketOthers, models.BucketAverage)
}

func (s Summary) Get(bucket string) (float64, bool) {
	for _, e := range s {
		if e.Bucket == bucket {
			return e.Value, true
		}
	}
	return 0, false
}

// Rounded rounds every value to three decimals, half to even.
func (s Summary) Rounded() Summary {
	out := make(Summary, len(s))
	for i, e := range s {
		out[i] = Entry{Bucket: e.Bucket, Value: round3(e.Value)}
	}
	return out
}

// MarshalJSON writes the summary as an object with keys in report order.
func (s Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(e.Bucket)
		buf.Write(key)
		buf.WriteByte(':')
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	var m map[string]*float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Summary, 0, len(m))
	for _, b := range Buckets() {
		v, ok := m[b]
		if !ok {
			continue
		}
		e := Entry{Bucket: b, Value: math.NaN()}
		if v != nil {
			e.Value = *v
		}
		out = append(out, e)
	}
	*s = out
	return nil
}

// Summarize rolls per-category scores up into the reported buckets.
// Majors pass through. Minors are pooled into Others, weighted by their
// populations. Average weighs every bucket by its population and divides by
// the population of all categories.
func Summarize(scores map[models.Category]float64, populations map[models.Category]int) (Summary, error) {
	var out Summary
	var weighted, total float64

	for _, rule := range models.Categories {
		n := populations[rule.Category]
		if n <= 0 {
			return nil, fmt.Errorf("%w: %s has no series", models.ErrEmptyCategory, rule.Category)
		}
		if _, ok := scores[rule.Category]; !ok {
			return nil, fmt.Errorf("%w: no score for %s", models.ErrEmptyCategory, rule.Category)
		}
		total += float64(n)
	}

	for _, c := range models.CategoriesWithRole(models.Major) {
		n := float64(populations[c])
		weighted += scores[c] * n
		out = append(out, Entry{Bucket: string(c), Value: scores[c]})
	}

	var othersScore, othersCount float64
	for _, c := range models.CategoriesWithRole(models.Minor) {
		n := float64(populations[c])
		othersScore += scores[c] * n
		othersCount += n
	}
	weighted += othersScore
	out = append(out, Entry{Bucket: models.BucketOthers, Value: othersScore / othersCount})

	out = append(out, Entry{Bucket: models.BucketAverage, Value: weighted / total})
	return out, nil
}

// Combine averages the two model/baseline ratios bucket by bucket:
// (modelMASE/naiveMASE + modelSMAPE/naiveSMAPE) / 2.
// It works on already aggregated summaries.
func Combine(modelMASE, naiveMASE, modelSMAPE, naiveSMAPE Summary) (Summary, error) {
	out := make(Summary, 0, len(modelMASE))
	for _, e := range modelMASE {
		nm, ok1 := naiveMASE.Get(e.Bucket)
		ms, ok2 := modelSMAPE.Get(e.Bucket)
		ns, ok3 := naiveSMAPE.Get(e.Bucket)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("%w: bucket %s missing from a summary", models.ErrSchemaMismatch, e.Bucket)
		}
		if nm == 0 || ns == 0 {
			return nil, fmt.Errorf("%w: %s baseline MASE %v, sMAPE %v", models.ErrDegenerateBaseline, e.Bucket, nm, ns)
		}
		out = append(out, Entry{Bucket: e.Bucket, Value: (e.Value/nm + ms/ns) / 2})
	}
	return out, nil
}

func round3(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return math.RoundToEven(x*1000) / 1000
}
