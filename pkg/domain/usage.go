package domain

import "time"

// TokenCost prices a token count. The result is not rounded.
func TokenCost(tokens int, costPerMillion float64) float64 {
	return float64(tokens) / 1_000_000 * costPerMillion
}

// UsageTotals aggregates ledger rows over a period.
type UsageTotals struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
	Calls  int64   `json:"calls"`
}

// DailyUsage is one point of the daily series.
type DailyUsage struct {
	Date   string  `json:"date"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// UsageReport is the admin view of token consumption for one month.
type UsageReport struct {
	Month           string       `json:"month"`
	Current         UsageTotals  `json:"current"`
	Previous        UsageTotals  `json:"previous"`
	TokensChangePct float64      `json:"tokensChangePct"`
	CostChangePct   float64      `json:"costChangePct"`
	Daily           []DailyUsage `json:"daily"`
	GeneratedAt     time.Time    `json:"generatedAt"`
}

// PercentChange compares cur against prev. Both zero yields 0; a rise from
// zero yields 100.
func PercentChange(cur, prev float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 100
	}
	return (cur - prev) / prev * 100
}

// MonthRange returns [start of month, start of next month) in UTC for t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.UTC().Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// FillDaily returns one entry per day in [from, to), taking values from
// points keyed by date and zero otherwise.
func FillDaily(from, to time.Time, points map[string]DailyUsage) []DailyUsage {
	out := make([]DailyUsage, 0, 31)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		if p, ok := points[key]; ok {
			p.Date = key
			out = append(out, p)
			continue
		}
		out = append(out, DailyUsage{Date: key})
	}
	return out
}
