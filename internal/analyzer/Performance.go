package analyzer

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate a return (need at least 2 points spanning some time).
var ErrInsufficientData = errors.New("insufficient data points for analysis")

const year = 365 * 24 * time.Hour

// RatePoint is one observation of a crucible: its exchange rate and the base price at that time.
type RatePoint struct {
	Timestamp time.Time
	Rate      float64
	PriceUSD  float64
}

// Performance summarizes a crucible's history between two snapshots.
type Performance struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Points          int       `json:"points"`
	RateGrowth      float64   `json:"rate_growth"`      // last rate / first rate - 1
	RealizedAPY     float64   `json:"realized_apy"`     // rate growth compounded to one year
	PriceVolatility float64   `json:"price_volatility"` // annualized, 0 with fewer than 2 priced points
}

func sortPoints(points []RatePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// RealizedAPY annualizes the exchange rate growth between the first and last point.
// It sorts points in place.
func RealizedAPY(points []RatePoint) (float64, error) {
	if len(points) < 2 {
		return 0, ErrInsufficientData
	}
	sortPoints(points)

	first, last := points[0], points[len(points)-1]
	elapsed := last.Timestamp.Sub(first.Timestamp)
	if elapsed <= 0 || first.Rate <= 0 || last.Rate <= 0 {
		return 0, ErrInsufficientData
	}

	years := float64(elapsed) / float64(year)
	return math.Pow(last.Rate/first.Rate, 1/years) - 1, nil
}

// CalculateVolatility calculates the annualized volatility of the base price.
// It uses logarithmic returns and the population standard deviation.
// The annualizationFactor should match the frequency of the data (e.g., 8760 for hourly, 365 for daily).
func CalculateVolatility(points []RatePoint, annualizationFactor float64) (float64, error) {
	n := len(points)
	if n < 2 {
		return 0, ErrInsufficientData
	}
	sortPoints(points)

	logReturns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		current := points[i].PriceUSD
		previous := points[i-1].PriceUSD

		// Unpriced points would break math.Log
		if previous <= 0 || current <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(current/previous))
	}

	numReturns := len(logReturns)
	if numReturns == 0 {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(numReturns)

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(numReturns))

	return stdDev * math.Sqrt(annualizationFactor), nil
}

// Analyze computes a Performance from snapshot points. The volatility is annualized using
// the mean spacing between points.
func Analyze(points []RatePoint) (Performance, error) {
	apy, err := RealizedAPY(points)
	if err != nil {
		return Performance{}, err
	}
	first, last := points[0], points[len(points)-1]

	perf := Performance{
		From:        first.Timestamp,
		To:          last.Timestamp,
		Points:      len(points),
		RateGrowth:  last.Rate/first.Rate - 1,
		RealizedAPY: apy,
	}

	spacing := last.Timestamp.Sub(first.Timestamp) / time.Duration(len(points)-1)
	if spacing > 0 {
		vol, err := CalculateVolatility(points, float64(year)/float64(spacing))
		if err != nil && !errors.Is(err, ErrInsufficientData) {
			return Performance{}, err
		}
		perf.PriceVolatility = vol
	}
	return perf, nil
}
