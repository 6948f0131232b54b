// Package stats derives calendar-week windows from the listening history and
// compares two weeks of daily listening totals.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmorin/go-spotify-history/internal/db"
)

const (
	daysPerWeek = 7

	// tCritical is the two-tailed critical value at alpha = 0.05 for 6
	// degrees of freedom. Weeks always have exactly seven days, so the
	// degrees of freedom never vary and the value can stay fixed. If week
	// length ever becomes configurable this must be computed from the
	// t-distribution instead.
	tCritical = 2.447
)

const dateLayout = "2006-01-02"

// WeekDates returns the seven consecutive local dates, Sunday through
// Saturday, of the calendar week containing ref.
func WeekDates(ref time.Time) []string {
	// time.Weekday numbers Sunday as 0, so the offset back to the most
	// recent Sunday is the weekday itself.
	sunday := ref.AddDate(0, 0, -int(ref.Weekday()))

	dates := make([]string, daysPerWeek)
	for i := range dates {
		dates[i] = sunday.AddDate(0, 0, i).Format(dateLayout)
	}
	return dates
}

// Comparison is the result of comparing two weeks of daily listening totals.
type Comparison struct {
	WeekA       []string // Sunday..Saturday dates
	WeekB       []string
	TotalsA     []int64 // daily listening totals, ms
	TotalsB     []int64
	DayDeltas   []int64 // TotalsB[i] - TotalsA[i]
	TotalDelta  int64
	TStatistic  float64
	TCritical   float64
	Significant bool
}

// CompareTotals computes day-by-day signed deltas between two weeks of daily
// totals and a one-sample paired t-test of the deltas against a null mean of
// zero, two-tailed. Both slices must hold exactly seven values.
func CompareTotals(totalsA, totalsB []int64) (*Comparison, error) {
	if len(totalsA) != daysPerWeek || len(totalsB) != daysPerWeek {
		return nil, fmt.Errorf("expected %d daily totals per week, got %d and %d",
			daysPerWeek, len(totalsA), len(totalsB))
	}

	deltas := make([]int64, daysPerWeek)
	var total int64
	for i := range deltas {
		deltas[i] = totalsB[i] - totalsA[i]
		total += deltas[i]
	}

	t := tStatistic(deltas)

	return &Comparison{
		TotalsA:     append([]int64(nil), totalsA...),
		TotalsB:     append([]int64(nil), totalsB...),
		DayDeltas:   deltas,
		TotalDelta:  total,
		TStatistic:  t,
		TCritical:   tCritical,
		Significant: math.Abs(t) > tCritical,
	}, nil
}

// tStatistic computes mean(d) / (stddev(d) / sqrt(n)) with the sample
// standard deviation. With zero variance the statistic is 0 when the mean is
// also 0, otherwise signed infinity: the limit behavior, and it keeps the
// significance call meaningful for constant deltas.
func tStatistic(deltas []int64) float64 {
	n := float64(len(deltas))

	var sum float64
	for _, d := range deltas {
		sum += float64(d)
	}
	mean := sum / n

	var sq float64
	for _, d := range deltas {
		diff := float64(d) - mean
		sq += diff * diff
	}
	sd := math.Sqrt(sq / (n - 1))

	if sd == 0 {
		if mean == 0 {
			return 0
		}
		return math.Inf(int(math.Copysign(1, mean)))
	}
	return mean / (sd / math.Sqrt(n))
}

// Comparator aggregates weekly listening totals from the history store.
type Comparator struct {
	history *db.HistoryRepository
}

// NewComparator creates a Comparator reading from the given repository.
func NewComparator(history *db.HistoryRepository) *Comparator {
	return &Comparator{history: history}
}

// CompareWeeks compares the calendar week containing refB against the week
// containing refA, day by day. Days with no recorded plays count as zero.
func (c *Comparator) CompareWeeks(ctx context.Context, refA, refB time.Time) (*Comparison, error) {
	weekA := WeekDates(refA)
	weekB := WeekDates(refB)

	totalsA, err := c.weekTotals(ctx, weekA)
	if err != nil {
		return nil, err
	}
	totalsB, err := c.weekTotals(ctx, weekB)
	if err != nil {
		return nil, err
	}

	cmp, err := CompareTotals(totalsA, totalsB)
	if err != nil {
		return nil, err
	}
	cmp.WeekA = weekA
	cmp.WeekB = weekB
	return cmp, nil
}

func (c *Comparator) weekTotals(ctx context.Context, dates []string) ([]int64, error) {
	totals := make([]int64, len(dates))
	for i, date := range dates {
		total, err := c.history.TotalDuration(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("total for %s: %w", date, err)
		}
		totals[i] = total
	}
	return totals, nil
}
