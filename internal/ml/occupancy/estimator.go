// Package occupancy estimates the expected occupancy rate of a date when the
// caller does not supply one.
package occupancy

import (
	"math"
	"time"

	"optibooking/pkg/errors"
)

// features per observation: per-night price, persons, day of year
const width = 3

// Observation is one historical stay reduced to the estimator's inputs
type Observation struct {
	Price    float64
	Persons  int
	Date     time.Time
	Occupied float64 // occupancy rate in [0,1]
}

// Estimator is an ordinary least squares fit of occupancy on price, persons and day of year
type Estimator struct {
	// Coefficients holds the intercept followed by one slope per feature
	Coefficients [width + 1]float64
	Samples      int
}

// Fit solves the normal equations. It needs more observations than
// coefficients and a non-degenerate design.
func Fit(obs []Observation) (*Estimator, error) {
	if len(obs) <= width+1 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "need more than %d observations, got %d", width+1, len(obs))
	}

	var xtx [width + 1][width + 1]float64
	var xty [width + 1]float64
	for _, o := range obs {
		row := design(o.Price, o.Persons, o.Date)
		for i := range row {
			xty[i] += row[i] * o.Occupied
			for j := range row {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	beta, err := solve(xtx, xty)
	if err != nil {
		return nil, err
	}
	return &Estimator{Coefficients: beta, Samples: len(obs)}, nil
}

// Predict returns the estimated occupancy rate, clamped to [0,1]
func (e *Estimator) Predict(price float64, persons int, date time.Time) float64 {
	row := design(price, persons, date)
	var v float64
	for i := range row {
		v += e.Coefficients[i] * row[i]
	}
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func design(price float64, persons int, date time.Time) [width + 1]float64 {
	return [width + 1]float64{1, price, float64(persons), float64(date.YearDay())}
}

// solve runs Gaussian elimination with partial pivoting
func solve(a [width + 1][width + 1]float64, b [width + 1]float64) ([width + 1]float64, error) {
	const n = width + 1
	var x [n]float64

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-9 {
			return x, errors.Wrap(errors.ErrInvalidInput, "singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	for r := n - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < n; c++ {
			s -= a[r][c] * x[c]
		}
		x[r] = s / a[r][r]
	}
	return x, nil
}
