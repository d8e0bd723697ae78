package analytics

import (
	"fmt"
	"math"

	"eusotrip/internal/domain"
)

// TrendDirection labels where a series is heading.
type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

const (
	// trendThreshold is the fractional move between the two window means
	// below which the series reads as stable.
	trendThreshold = 0.05

	// minSeriesPoints is the shortest history the smoother accepts.
	minSeriesPoints = 4

	// Holt's linear method smoothing factors.
	smoothLevel = 0.3
	smoothTrend = 0.1

	// zBand is the z-score for a 90% confidence band.
	zBand = 1.645

	defaultHorizon = 4
	maxHorizon     = 52
)

// Trend classifies a series by comparing the mean of its last four points
// against the mean of the four before them; series shorter than eight
// points compare against the first four instead. Moves within the
// threshold, and series too short to split, read as stable.
func Trend(series []float64) TrendDirection {
	if len(series) < minSeriesPoints {
		return TrendStable
	}
	recent := mean(series[len(series)-4:])
	var older float64
	if len(series) >= 8 {
		older = mean(series[len(series)-8 : len(series)-4])
	} else {
		older = mean(series[:4])
	}
	change := (recent - older) / math.Max(older, 0.01)
	switch {
	case change > trendThreshold:
		return TrendRising
	case change < -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// ForecastPoint is one projected step with its confidence band.
type ForecastPoint struct {
	Step      int     `json:"step"`
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// ForecastResult is a projection plus the shape of the history it was
// fitted to.
type ForecastResult struct {
	Points         []ForecastPoint `json:"points"`
	Trend          TrendDirection  `json:"trend"`
	Volatility     float64         `json:"volatility"`
	SeasonalFactor float64         `json:"seasonal_factor"`
}

// Forecast projects a series forward by double exponential smoothing:
// level and trend recurrences with α=0.3 and β=0.1, seeded from the first
// point. Each step i predicts level + trend·i with a band of ±1.645
// standard deviations of the history. A zero or negative horizon projects
// four steps. At least four history points are required.
func Forecast(series []float64, horizon int) (ForecastResult, error) {
	if len(series) < minSeriesPoints {
		return ForecastResult{}, domain.Invalid("series", fmt.Sprintf("needs at least %d points", minSeriesPoints))
	}
	if horizon <= 0 {
		horizon = defaultHorizon
	}
	if horizon > maxHorizon {
		horizon = maxHorizon
	}

	level := series[0]
	trend := 0.0
	for _, v := range series {
		prev := level
		level = smoothLevel*v + (1-smoothLevel)*(level+trend)
		trend = smoothTrend*(level-prev) + (1-smoothTrend)*trend
	}

	sigma := stddev(series)
	points := make([]ForecastPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		pred := level + trend*float64(i)
		points = append(points, ForecastPoint{
			Step:      i,
			Predicted: pred,
			Lower:     pred - zBand*sigma,
			Upper:     pred + zBand*sigma,
		})
	}

	return ForecastResult{
		Points:         points,
		Trend:          Trend(series),
		Volatility:     volatility(series),
		SeasonalFactor: seasonalFactor(series),
	}, nil
}

func mean(series []float64) float64 {
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// stddev is the population standard deviation.
func stddev(series []float64) float64 {
	m := mean(series)
	var sq float64
	for _, v := range series {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(series)))
}

// volatility is the coefficient of variation, guarded against near-zero
// means.
func volatility(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return stddev(series) / math.Max(mean(series), 0.01)
}

// seasonalFactor estimates how much of the variance comes from a seasonal
// swing by comparing the two halves of the series against the overall
// mean. Short series score zero.
func seasonalFactor(series []float64) float64 {
	if len(series) < 10 {
		return 0
	}
	m := mean(series)
	var total float64
	for _, v := range series {
		total += (v - m) * (v - m)
	}
	total /= float64(len(series))
	if total == 0 {
		return 0
	}
	mid := len(series) / 2
	h1 := mean(series[:mid])
	h2 := mean(series[mid:])
	seasonal := ((h1-m)*(h1-m) + (h2-m)*(h2-m)) / 2
	return math.Min(seasonal/total, 1.0)
}
