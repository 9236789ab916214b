package services

import (
	"math"
	"testing"
	"time"

	"camera-tracker/models"
	"camera-tracker/utils"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.5
}

func TestComputePriceStats(t *testing.T) {
	stats := ComputePriceStats([]int{20000, 40000, 10000, 30000})

	if stats.Count != 4 {
		t.Errorf("Count = %d; want 4", stats.Count)
	}
	if !almostEqual(stats.Mean, 25000) {
		t.Errorf("Mean = %.2f; want 25000", stats.Mean)
	}
	if !almostEqual(stats.Median, 25000) {
		t.Errorf("Median = %.2f; want 25000", stats.Median)
	}
	if stats.Min != 10000 || stats.Max != 40000 {
		t.Errorf("Min/Max = %d/%d; want 10000/40000", stats.Min, stats.Max)
	}
	if !almostEqual(stats.Q25, 17500) || !almostEqual(stats.Q75, 32500) {
		t.Errorf("Q25/Q75 = %.2f/%.2f; want 17500/32500", stats.Q25, stats.Q75)
	}
	if !almostEqual(stats.IQR, 15000) {
		t.Errorf("IQR = %.2f; want 15000", stats.IQR)
	}
	// Sample standard deviation of {10000,20000,30000,40000}.
	if math.Abs(stats.StdDev-12909.94) > 1 {
		t.Errorf("StdDev = %.2f; want ~12909.94", stats.StdDev)
	}
}

func TestComputePriceStatsEmpty(t *testing.T) {
	stats := ComputePriceStats(nil)
	if stats.Count != 0 || stats.Mean != 0 || stats.Median != 0 {
		t.Errorf("empty input should yield zero stats, got %+v", stats)
	}
}

func day(n int) time.Time {
	return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestDailyAverages(t *testing.T) {
	points := []models.PricePoint{
		{Price: 20000, ObservedAt: day(0).Add(10 * time.Hour)},
		{Price: 30000, ObservedAt: day(0).Add(14 * time.Hour)},
		{Price: 40000, ObservedAt: day(1).Add(9 * time.Hour)},
	}

	daily := DailyAverages(points)
	if len(daily) != 2 {
		t.Fatalf("got %d days; want 2", len(daily))
	}
	if !almostEqual(daily[0].MeanPrice, 25000) || daily[0].Count != 2 {
		t.Errorf("day 0 = %+v; want mean 25000 over 2 points", daily[0])
	}
	if daily[0].MinPrice != 20000 || daily[0].MaxPrice != 30000 {
		t.Errorf("day 0 min/max = %d/%d", daily[0].MinPrice, daily[0].MaxPrice)
	}
	if !daily[0].Date.Before(daily[1].Date) {
		t.Error("days not ordered")
	}
}

func TestPredictTrendRising(t *testing.T) {
	daily := []DailyStat{
		{Date: day(0), MeanPrice: 10000},
		{Date: day(1), MeanPrice: 11000},
		{Date: day(2), MeanPrice: 12000},
		{Date: day(3), MeanPrice: 13000},
	}

	forecast := PredictTrend(daily, 30)
	if forecast.Trend != "up" {
		t.Errorf("Trend = %q; want up", forecast.Trend)
	}
	if !almostEqual(forecast.Slope, 1000) {
		t.Errorf("Slope = %.2f; want ~1000/day", forecast.Slope)
	}
	// 13000 now, +30 days at 1000/day.
	if !almostEqual(forecast.PredictedPrice, 43000) {
		t.Errorf("PredictedPrice = %.2f; want ~43000", forecast.PredictedPrice)
	}
	if forecast.Confidence != 40 {
		t.Errorf("Confidence = %d; want 40", forecast.Confidence)
	}
}

func TestPredictTrendTooLittleHistory(t *testing.T) {
	daily := []DailyStat{
		{Date: day(0), MeanPrice: 10000},
		{Date: day(1), MeanPrice: 9000},
	}

	forecast := PredictTrend(daily, 30)
	if forecast.Trend != "stable" || forecast.Confidence != 0 {
		t.Errorf("forecast = %+v; want stable with zero confidence", forecast)
	}
	if !almostEqual(forecast.PredictedPrice, 9000) {
		t.Errorf("PredictedPrice = %.2f; want the last mean", forecast.PredictedPrice)
	}
}

func TestReportFiltersInactiveAndUnpriced(t *testing.T) {
	listings := []*models.Listing{
		{Price: 25000, Region: "Москва", IsActive: true},
		{Price: 30000, Region: "Москва", IsActive: true},
		{Price: 99999, Region: "Казань", IsActive: false}, // inactive: ignored
		{Price: 0, Region: "Москва", IsActive: true},      // unpriced: ignored
	}

	a := NewAnalytics(utils.NewLogger())
	report := a.Report(listings, nil)

	if report.Stats.Count != 2 {
		t.Errorf("Count = %d; want 2", report.Stats.Count)
	}
	if report.ListingsByRegion["Москва"] != 2 {
		t.Errorf("Москва count = %d; want 2", report.ListingsByRegion["Москва"])
	}
	if report.Cheapest == nil || report.Cheapest.Price != 25000 {
		t.Errorf("Cheapest = %+v; want the 25000 listing", report.Cheapest)
	}
}
