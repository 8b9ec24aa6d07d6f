package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCost(t *testing.T) {
	assert.Equal(t, 0.0, TokenCost(0, 0.15))
	assert.InDelta(t, 0.15, TokenCost(1_000_000, 0.15), 1e-12)
	assert.InDelta(t, 0.00018, TokenCost(1200, 0.15), 1e-12)
	assert.InDelta(t, 1200.0/1_000_000*0.6, TokenCost(1200, 0.6), 0)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 0.0, PercentChange(0, 0))
	assert.Equal(t, 100.0, PercentChange(5, 0))
	assert.InDelta(t, 50.0, PercentChange(150, 100), 1e-9)
	assert.InDelta(t, -25.0, PercentChange(75, 100), 1e-9)
}

func TestMonthRange(t *testing.T) {
	start, next := MonthRange(time.Date(2024, 12, 15, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestFillDaily(t *testing.T) {
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	series := FillDaily(from, to, map[string]DailyUsage{
		"2024-02-10": {Tokens: 500, Cost: 0.01},
	})
	require.Len(t, series, 29)
	assert.Equal(t, "2024-02-01", series[0].Date)
	assert.Equal(t, "2024-02-29", series[28].Date)
	assert.Equal(t, int64(500), series[9].Tokens)
	assert.Equal(t, "2024-02-10", series[9].Date)
	assert.Zero(t, series[10].Tokens)
}
