package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"camera-tracker/models"
	"camera-tracker/utils"
)

// PriceStats summarizes the price distribution of a listing set.
type PriceStats struct {
	Count  int
	Mean   float64
	Median float64
	Min    int
	Max    int
	StdDev float64
	Q25    float64
	Q75    float64
	IQR    float64
}

// DailyStat aggregates the price points observed on one day.
type DailyStat struct {
	Date      time.Time
	MeanPrice float64
	MinPrice  int
	MaxPrice  int
	Count     int
}

// TrendForecast is a linear extrapolation of daily mean prices.
type TrendForecast struct {
	Trend          string // "up", "down" or "stable"
	PredictedPrice float64
	CurrentPrice   float64
	Slope          float64
	// Confidence grows with the number of observed days, capped at 100.
	Confidence int
}

// MarketReport bundles everything the stats command prints for a model.
type MarketReport struct {
	Stats            PriceStats
	Cheapest         *models.Listing
	ListingsByRegion map[string]int
	Daily            []DailyStat
	Forecast         TrendForecast
}

// Analytics computes derived price statistics over stored listings and
// their snapshot history. It only consumes active, positive-priced rows.
type Analytics struct {
	logger *utils.Logger
}

// NewAnalytics creates an Analytics service.
func NewAnalytics(logger *utils.Logger) *Analytics {
	return &Analytics{logger: logger}
}

// Report builds a full market report from the stored listings and the
// observed price history of one model.
func (a *Analytics) Report(listings []*models.Listing, points []models.PricePoint) *MarketReport {
	report := &MarketReport{ListingsByRegion: make(map[string]int)}

	var priced []*models.Listing
	for _, l := range listings {
		if !l.IsActive || l.Price <= 0 {
			continue
		}
		priced = append(priced, l)
		if l.Region != "" {
			report.ListingsByRegion[l.Region]++
		}
		if report.Cheapest == nil || l.Price < report.Cheapest.Price {
			report.Cheapest = l
		}
	}

	prices := make([]int, len(priced))
	for i, l := range priced {
		prices[i] = l.Price
	}
	report.Stats = ComputePriceStats(prices)
	report.Daily = DailyAverages(points)
	report.Forecast = PredictTrend(report.Daily, 30)

	return report
}

// ComputePriceStats computes distribution statistics over raw prices.
func ComputePriceStats(prices []int) PriceStats {
	stats := PriceStats{Count: len(prices)}
	if len(prices) == 0 {
		return stats
	}

	sorted := append([]int(nil), prices...)
	sort.Ints(sorted)

	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]

	var sum float64
	for _, p := range sorted {
		sum += float64(p)
	}
	stats.Mean = sum / float64(len(sorted))

	if len(sorted) > 1 {
		var sq float64
		for _, p := range sorted {
			d := float64(p) - stats.Mean
			sq += d * d
		}
		// Sample standard deviation.
		stats.StdDev = math.Sqrt(sq / float64(len(sorted)-1))
	}

	stats.Median = quantile(sorted, 0.5)
	stats.Q25 = quantile(sorted, 0.25)
	stats.Q75 = quantile(sorted, 0.75)
	stats.IQR = stats.Q75 - stats.Q25

	return stats
}

// quantile computes the q-th quantile of sorted values with linear
// interpolation between the two nearest ranks.
func quantile(sorted []int, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return float64(sorted[0])
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}

// DailyAverages groups price points by calendar day (UTC) and computes
// per-day mean, min, max and count, ordered by day.
func DailyAverages(points []models.PricePoint) []DailyStat {
	byDay := make(map[time.Time]*DailyStat)
	for _, pt := range points {
		day := pt.ObservedAt.UTC().Truncate(24 * time.Hour)
		st, ok := byDay[day]
		if !ok {
			st = &DailyStat{Date: day, MinPrice: pt.Price, MaxPrice: pt.Price}
			byDay[day] = st
		}
		st.Count++
		st.MeanPrice += float64(pt.Price)
		if pt.Price < st.MinPrice {
			st.MinPrice = pt.Price
		}
		if pt.Price > st.MaxPrice {
			st.MaxPrice = pt.Price
		}
	}

	daily := make([]DailyStat, 0, len(byDay))
	for _, st := range byDay {
		st.MeanPrice /= float64(st.Count)
		daily = append(daily, *st)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date) })
	return daily
}

// PredictTrend fits a least-squares line through the daily mean prices
// and extrapolates it the given number of days ahead. Fewer than three
// observed days yields a "stable" forecast with zero confidence.
func PredictTrend(daily []DailyStat, days int) TrendForecast {
	forecast := TrendForecast{Trend: "stable"}
	if len(daily) == 0 {
		return forecast
	}
	forecast.CurrentPrice = daily[len(daily)-1].MeanPrice
	if len(daily) < 3 {
		forecast.PredictedPrice = forecast.CurrentPrice
		return forecast
	}

	first := daily[0].Date
	xs := make([]float64, len(daily))
	ys := make([]float64, len(daily))
	for i, st := range daily {
		xs[i] = st.Date.Sub(first).Hours() / 24
		ys[i] = st.MeanPrice
	}

	var xMean, yMean float64
	for i := range xs {
		xMean += xs[i]
		yMean += ys[i]
	}
	xMean /= float64(len(xs))
	yMean /= float64(len(ys))

	var num, den float64
	for i := range xs {
		num += (xs[i] - xMean) * (ys[i] - yMean)
		den += (xs[i] - xMean) * (xs[i] - xMean)
	}

	slope := 0.0
	intercept := yMean
	if den != 0 {
		slope = num / den
		intercept = yMean - slope*xMean
	}

	forecast.Slope = slope
	forecast.PredictedPrice = slope*(xs[len(xs)-1]+float64(days)) + intercept
	switch {
	case slope > 0:
		forecast.Trend = "up"
	case slope < 0:
		forecast.Trend = "down"
	}

	confidence := len(daily) * 10
	if confidence > 100 {
		confidence = 100
	}
	forecast.Confidence = confidence

	return forecast
}

// Print writes the report to stdout in a readable console form.
func (a *Analytics) Print(model *models.CameraModel, r *MarketReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n%s\n  %s — market report\n%s\n\n", sep, model, sep)

	fmt.Printf("  Price statistics (%d active listings)\n  %s\n", r.Stats.Count, thin)
	if r.Stats.Count == 0 {
		fmt.Printf("  No priced listings\n\n")
		return
	}
	fmt.Printf("  Mean    : %10.0f ₽\n", r.Stats.Mean)
	fmt.Printf("  Median  : %10.0f ₽\n", r.Stats.Median)
	fmt.Printf("  Min/Max : %10d ₽ / %d ₽\n", r.Stats.Min, r.Stats.Max)
	fmt.Printf("  Std dev : %10.0f ₽\n", r.Stats.StdDev)
	fmt.Printf("  Q25/Q75 : %10.0f ₽ / %.0f ₽ (IQR %.0f)\n\n", r.Stats.Q25, r.Stats.Q75, r.Stats.IQR)

	if r.Cheapest != nil {
		fmt.Printf("  Cheapest listing\n  %s\n", thin)
		fmt.Printf("  %s\n  %d ₽ — %s\n\n", truncate(r.Cheapest.Title, 50), r.Cheapest.Price, r.Cheapest.URL)
	}

	if len(r.ListingsByRegion) > 0 {
		fmt.Printf("  Listings by region\n  %s\n", thin)
		type regionCount struct {
			region string
			count  int
		}
		var regions []regionCount
		for region, count := range r.ListingsByRegion {
			regions = append(regions, regionCount{region, count})
		}
		sort.Slice(regions, func(i, j int) bool { return regions[i].count > regions[j].count })
		for _, rc := range regions {
			fmt.Printf("  %-30s %d\n", truncate(rc.region, 28), rc.count)
		}
		fmt.Println()
	}

	fmt.Printf("  30-day trend\n  %s\n", thin)
	if r.Forecast.Confidence == 0 {
		fmt.Printf("  Not enough history yet\n")
	} else {
		fmt.Printf("  Direction : %s (slope %.1f ₽/day)\n", r.Forecast.Trend, r.Forecast.Slope)
		fmt.Printf("  Current   : %.0f ₽ → predicted %.0f ₽ (confidence %d%%)\n",
			r.Forecast.CurrentPrice, r.Forecast.PredictedPrice, r.Forecast.Confidence)
	}
	fmt.Printf("\n%s\n\n", sep)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
