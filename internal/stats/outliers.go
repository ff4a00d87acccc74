package stats

import (
	"math"
	"sort"
)

// IQRMultiplier widens the interquartile range into the retention bounds
const IQRMultiplier = 1.5

// FilterOutliers keeps the rows whose value lies within
// [Q1 - 1.5·IQR, Q3 + 1.5·IQR]. Quartiles use linear interpolation at
// position q·(n-1) over the finite values. Rows with a non-finite value are
// dropped. Input order is preserved.
func FilterOutliers[T any](rows []T, value func(T) float64) []T {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := value(r); isFinite(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return []T{}
	}

	lower, upper := Bounds(values)
	out := make([]T, 0, len(values))
	for _, r := range rows {
		v := value(r)
		if isFinite(v) && v >= lower && v <= upper {
			out = append(out, r)
		}
	}
	return out
}

// FilterValues is FilterOutliers over a plain column
func FilterValues(values []float64) []float64 {
	return FilterOutliers(values, func(v float64) float64 { return v })
}

// Bounds returns the inclusive retention interval of a non-empty column
func Bounds(values []float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - IQRMultiplier*iqr, q3 + IQRMultiplier*iqr
}

// Quantile returns the q-th quantile of sorted values by linear interpolation
// between the closest ranks. sorted must be non-empty and ascending.
func Quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Quantile(sorted, 0.5)
}
