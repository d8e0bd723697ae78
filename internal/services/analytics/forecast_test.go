package analytics

import (
	"math"
	"testing"

	"eusotrip/internal/domain"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrend(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		series []float64
		want   TrendDirection
	}{
		{"too short", []float64{10, 20, 30}, TrendStable},
		{"flat", []float64{10, 10, 10, 10, 10, 10, 10, 10}, TrendStable},
		{"rising", []float64{10, 10, 10, 10, 20, 20, 20, 20}, TrendRising},
		{"declining", []float64{20, 20, 20, 20, 10, 10, 10, 10}, TrendDeclining},
		// Six points: the comparison window overlaps the recent one. The
		// move lands exactly on the threshold, which is not a trend.
		{"exactly at threshold", []float64{10, 10, 10, 10, 10, 12}, TrendStable},
		{"just over threshold", []float64{10, 10, 10, 10, 10, 13}, TrendRising},
		{"zero baseline", []float64{0, 0, 0, 0, 1, 1, 1, 1}, TrendRising},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Trend(tc.series); got != tc.want {
				t.Fatalf("Trend(%v) = %v, want %v", tc.series, got, tc.want)
			}
		})
	}
}

func TestForecastRejectsShortSeries(t *testing.T) {
	t.Parallel()
	if _, err := Forecast([]float64{1, 2, 3}, 4); !domain.IsValidation(err) {
		t.Fatalf("Forecast error = %v, want validation error", err)
	}
}

func TestForecastConstantSeries(t *testing.T) {
	t.Parallel()
	res, err := Forecast([]float64{50, 50, 50, 50}, 3)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(res.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(res.Points))
	}
	for i, p := range res.Points {
		if p.Step != i+1 {
			t.Fatalf("point %d step = %d, want %d", i, p.Step, i+1)
		}
		// A flat history has zero deviation, so the band collapses.
		if !almost(p.Predicted, 50) || !almost(p.Lower, 50) || !almost(p.Upper, 50) {
			t.Fatalf("point %d = %+v, want flat 50", i, p)
		}
	}
	if res.Trend != TrendStable {
		t.Fatalf("trend = %v, want stable", res.Trend)
	}
	if res.Volatility != 0 {
		t.Fatalf("volatility = %v, want 0", res.Volatility)
	}
}

func TestForecastSlopedSeries(t *testing.T) {
	t.Parallel()
	series := []float64{10, 20, 30, 40}
	res, err := Forecast(series, 4)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(res.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(res.Points))
	}
	// The fitted trend is positive, so each step projects higher.
	for i := 1; i < len(res.Points); i++ {
		if res.Points[i].Predicted <= res.Points[i-1].Predicted {
			t.Fatalf("point %d = %v not above point %d = %v",
				i, res.Points[i].Predicted, i-1, res.Points[i-1].Predicted)
		}
	}
	// Band half-width is 1.645 population standard deviations: the
	// series has mean 25 and variance 125.
	sigma := math.Sqrt(125)
	for i, p := range res.Points {
		if !almost(p.Upper-p.Predicted, 1.645*sigma) || !almost(p.Predicted-p.Lower, 1.645*sigma) {
			t.Fatalf("point %d band = [%v, %v] around %v, want ±%v", i, p.Lower, p.Upper, p.Predicted, 1.645*sigma)
		}
	}
	// Four points make the two trend windows coincide, so the direction
	// reads stable no matter how steep the series is.
	if res.Trend != TrendStable {
		t.Fatalf("trend = %v, want stable", res.Trend)
	}
	if !almost(res.Volatility, sigma/25) {
		t.Fatalf("volatility = %v, want %v", res.Volatility, sigma/25)
	}
}

func TestForecastHorizonDefaults(t *testing.T) {
	t.Parallel()
	series := []float64{5, 5, 5, 5}

	res, err := Forecast(series, 0)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(res.Points) != defaultHorizon {
		t.Fatalf("default horizon points = %d, want %d", len(res.Points), defaultHorizon)
	}

	res, err = Forecast(series, 500)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(res.Points) != maxHorizon {
		t.Fatalf("capped horizon points = %d, want %d", len(res.Points), maxHorizon)
	}
}

func TestSeasonalFactor(t *testing.T) {
	t.Parallel()
	if got := seasonalFactor([]float64{1, 2, 3}); got != 0 {
		t.Fatalf("short series factor = %v, want 0", got)
	}
	if got := seasonalFactor([]float64{7, 7, 7, 7, 7, 7, 7, 7, 7, 7}); got != 0 {
		t.Fatalf("flat series factor = %v, want 0", got)
	}
	// A step between halves is pure seasonal swing, capped at 1.
	step := []float64{10, 10, 10, 10, 10, 20, 20, 20, 20, 20}
	if got := seasonalFactor(step); !almost(got, 1) {
		t.Fatalf("step series factor = %v, want 1", got)
	}
}
