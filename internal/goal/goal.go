// Package goal computes goal progress from activity logs.
//
// Everything here is a pure function of a goal, its logs and "today". A
// goal asks for DailyTargetQuantity every day from StartDate to its
// effective end: EndDate when it is set and already past, otherwise today.
// Logging more than the target builds savings; logging less builds debt.
//
// All dates are YYYY-MM-DD strings. Soft-deleted logs and logs of other
// activities are ignored.
package goal

import (
	"fmt"
	"math"
	"time"

	"github.com/pacelog/pacelog/internal/schema"
)

const day = 24 * time.Hour

// Balance is a goal's running total.
type Balance struct {
	// StartDate and EndDate bound the counted window, inclusive.
	StartDate      string  `json:"startDate" yaml:"startDate"`
	EndDate        string  `json:"endDate" yaml:"endDate"`
	DaysActive     int     `json:"daysActive" yaml:"daysActive"`
	TotalTarget    float64 `json:"totalTarget" yaml:"totalTarget"`
	TotalActual    float64 `json:"totalActual" yaml:"totalActual"`
	CurrentBalance float64 `json:"currentBalance" yaml:"currentBalance"`
}

// InDebt reports whether less than the target has been logged.
func (b Balance) InDebt() bool { return b.CurrentBalance < 0 }

// DailyRecord is one calendar day of a goal.
type DailyRecord struct {
	Date     string  `json:"date" yaml:"date"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	Achieved bool    `json:"achieved" yaml:"achieved"`
}

// Stats summarizes daily records. Average and Max only consider days with
// a positive quantity.
type Stats struct {
	TotalDays          int     `json:"totalDays" yaml:"totalDays"`
	ActiveDays         int     `json:"activeDays" yaml:"activeDays"`
	AchievedDays       int     `json:"achievedDays" yaml:"achievedDays"`
	Average            float64 `json:"average" yaml:"average"`
	Max                float64 `json:"max" yaml:"max"`
	MaxConsecutiveDays int     `json:"maxConsecutiveDays" yaml:"maxConsecutiveDays"`
}

// window is a goal's counted date range.
type window struct {
	start, end time.Time
}

func (w window) days() int {
	if w.end.Before(w.start) {
		return 0
	}
	return int(w.end.Sub(w.start)/day) + 1
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.start) && !t.After(w.end)
}

// effectiveWindow returns [startDate, effective end].
func effectiveWindow(g schema.Goal, today string) (window, error) {
	start, err := schema.ParseDate(g.StartDate)
	if err != nil {
		return window{}, fmt.Errorf("goal %s start: %w", g.ID, err)
	}
	end, err := schema.ParseDate(today)
	if err != nil {
		return window{}, fmt.Errorf("today: %w", err)
	}
	if g.EndDate != nil {
		goalEnd, err := schema.ParseDate(*g.EndDate)
		if err != nil {
			return window{}, fmt.Errorf("goal %s end: %w", g.ID, err)
		}
		if goalEnd.Before(end) {
			end = goalEnd
		}
	}
	return window{start: start, end: end}, nil
}

// dailyTotals sums log quantities per day inside w.
func dailyTotals(g schema.Goal, logs []schema.ActivityLog, w window) map[time.Time]float64 {
	totals := make(map[time.Time]float64)
	for _, l := range logs {
		if l.IsDeleted() {
			continue
		}
		if g.ActivityID != "" && l.ActivityID != "" && l.ActivityID != g.ActivityID {
			continue
		}
		d, err := schema.ParseDate(l.Date)
		if err != nil || !w.contains(d) {
			continue
		}
		totals[d] += l.QuantityOrZero()
	}
	return totals
}

// CalculateGoalBalance returns how far ahead of (positive) or behind
// (negative) the goal the logs are as of today.
func CalculateGoalBalance(g schema.Goal, logs []schema.ActivityLog, today string) (Balance, error) {
	w, err := effectiveWindow(g, today)
	if err != nil {
		return Balance{}, err
	}

	var actual float64
	for _, q := range dailyTotals(g, logs, w) {
		actual += q
	}

	days := w.days()
	target := float64(days) * g.DailyTargetQuantity
	return Balance{
		StartDate:      w.start.Format(schema.DateLayout),
		EndDate:        w.end.Format(schema.DateLayout),
		DaysActive:     days,
		TotalTarget:    target,
		TotalActual:    actual,
		CurrentBalance: actual - target,
	}, nil
}

// GenerateDailyRecords returns one record per day of the goal's window, in
// date order. Days without logs have quantity 0.
func GenerateDailyRecords(g schema.Goal, logs []schema.ActivityLog, today string) ([]DailyRecord, error) {
	w, err := effectiveWindow(g, today)
	if err != nil {
		return nil, err
	}

	totals := dailyTotals(g, logs, w)
	records := make([]DailyRecord, 0, w.days())
	for d := w.start; !d.After(w.end); d = d.Add(day) {
		q := totals[d]
		records = append(records, DailyRecord{
			Date:     d.Format(schema.DateLayout),
			Quantity: q,
			Achieved: q >= g.DailyTargetQuantity,
		})
	}
	return records, nil
}

// CalculateGoalStats summarizes records. A streak is a run of days with a
// positive quantity whose dates are exactly one day apart.
func CalculateGoalStats(records []DailyRecord) Stats {
	stats := Stats{TotalDays: len(records)}

	var sum float64
	var streak int
	var prev time.Time
	for _, r := range records {
		if r.Achieved {
			stats.AchievedDays++
		}
		if r.Quantity <= 0 {
			streak = 0
			continue
		}

		stats.ActiveDays++
		sum += r.Quantity
		stats.Max = math.Max(stats.Max, r.Quantity)

		d, err := schema.ParseDate(r.Date)
		switch {
		case err != nil:
			streak = 0
		case streak > 0 && d.Sub(prev) == day:
			streak++
		default:
			streak = 1
		}
		prev = d
		stats.MaxConsecutiveDays = max(stats.MaxConsecutiveDays, streak)
	}

	if stats.ActiveDays > 0 {
		stats.Average = math.Round(sum/float64(stats.ActiveDays)*10) / 10
	}
	return stats
}

// GetInactiveDates returns the days of the goal's window with nothing
// logged, in ascending order.
func GetInactiveDates(g schema.Goal, logs []schema.ActivityLog, today string) ([]string, error) {
	records, err := GenerateDailyRecords(g, logs, today)
	if err != nil {
		return nil, err
	}
	inactive := []string{}
	for _, r := range records {
		if r.Quantity == 0 {
			inactive = append(inactive, r.Date)
		}
	}
	return inactive, nil
}

// Summary bundles everything shown for a goal.
type Summary struct {
	GoalID        string        `json:"goalId" yaml:"goalId"`
	Balance       Balance       `json:"balance" yaml:"balance"`
	Stats         Stats         `json:"stats" yaml:"stats"`
	InactiveDates []string      `json:"inactiveDates" yaml:"inactiveDates"`
	Days          []DailyRecord `json:"days" yaml:"days"`
}

// Summarize computes balance, daily records, stats and inactive days
// together.
func Summarize(g schema.Goal, logs []schema.ActivityLog, today string) (Summary, error) {
	balance, err := CalculateGoalBalance(g, logs, today)
	if err != nil {
		return Summary{}, err
	}
	records, err := GenerateDailyRecords(g, logs, today)
	if err != nil {
		return Summary{}, err
	}

	inactive := []string{}
	for _, r := range records {
		if r.Quantity == 0 {
			inactive = append(inactive, r.Date)
		}
	}

	return Summary{
		GoalID:        g.ID,
		Balance:       balance,
		Stats:         CalculateGoalStats(records),
		InactiveDates: inactive,
		Days:          records,
	}, nil
}

// Today formats t as a calendar date in t's location.
func Today(t time.Time) string {
	return t.Format(schema.DateLayout)
}
