package statistics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/portal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func usageRow(date, units, bill string) portal.Row {
	return portal.Row{"Date": date, " Units Used": units, " Bill Amount": bill}
}

// newestFirst mirrors the portal export order.
func newestFirst() []portal.Row {
	return []portal.Row{
		usageRow("04/01/2025", "12", "$61.00"),
		usageRow("03/01/2025", "10", "$50.00"),
		usageRow("02/01/2025", "8", "$40.00"),
	}
}

func assertCumulative(t *testing.T, points []Point, seed decimal.Decimal) {
	t.Helper()
	prev := seed
	for i, p := range points {
		assert.True(t, prev.Add(p.Value).Equal(p.Sum), "point %d: %s + %s != %s", i, prev, p.Value, p.Sum)
		if i > 0 {
			assert.True(t, points[i-1].PeriodStart.Before(p.PeriodStart))
		}
		prev = p.Sum
	}
}

func TestBuild_FirstRun(t *testing.T) {
	rows := []portal.Row{
		{"Date": "03/01/2025", "Units Used": "10", "Bill Amount": "$50.00"},
		{"Date": "02/01/2025", "Units Used": "8", "Bill Amount": "$40.00"},
	}
	b := NewBuilder(zap.NewNop())

	consumption := b.Build(rows, Consumption, nil)
	require.Len(t, consumption.Points, 2)
	assert.Equal(t, day(2025, 2, 1), consumption.Points[0].PeriodStart)
	assert.True(t, dec("8").Equal(consumption.Points[0].Sum))
	assert.Equal(t, day(2025, 3, 1), consumption.Points[1].PeriodStart)
	assert.True(t, dec("10").Equal(consumption.Points[1].Value))
	assert.True(t, dec("18").Equal(consumption.Points[1].Sum))
	assert.Nil(t, consumption.Drift)

	cost := b.Build(rows, Cost, nil)
	require.Len(t, cost.Points, 2)
	assert.True(t, dec("40").Equal(cost.Points[0].Sum))
	assert.True(t, dec("90").Equal(cost.Points[1].Sum))
	assert.True(t, dec("90").Equal(cost.Total))
}

func TestBuild_Idempotent(t *testing.T) {
	b := NewBuilder(nil)
	rows := newestFirst()

	first := b.Build(rows, Consumption, nil)
	require.Len(t, first.Points, 3)
	last := first.Points[len(first.Points)-1]

	second := b.Build(rows, Consumption, &last)
	assert.Empty(t, second.Points)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Nil(t, second.Drift)
}

func TestBuild_ContinuesFromMarker(t *testing.T) {
	b := NewBuilder(nil)
	rows := newestFirst()

	marker := Point{PeriodStart: day(2025, 2, 1), Value: dec("8"), Sum: dec("8")}
	res := b.Build(rows, Consumption, &marker)

	require.Len(t, res.Points, 2)
	assertCumulative(t, res.Points, marker.Sum)
	assert.True(t, dec("30").Equal(res.Points[1].Sum))
}

func TestBuild_MarkerBoundary(t *testing.T) {
	b := NewBuilder(nil)
	rows := newestFirst()

	atMarker := Point{PeriodStart: day(2025, 3, 1), Sum: dec("18")}
	res := b.Build(rows, Consumption, &atMarker)
	require.Len(t, res.Points, 1)
	assert.Equal(t, day(2025, 4, 1), res.Points[0].PeriodStart)

	dayBefore := Point{PeriodStart: day(2025, 3, 1).AddDate(0, 0, -1), Sum: dec("8")}
	res = b.Build(rows, Consumption, &dayBefore)
	require.Len(t, res.Points, 2)
	assert.Equal(t, day(2025, 3, 1), res.Points[0].PeriodStart)
	assert.True(t, dec("18").Equal(res.Points[0].Sum))
}

func TestBuild_SkipsMalformedRows(t *testing.T) {
	rows := []portal.Row{
		usageRow("04/01/2025", "12", "$61.00"),
		usageRow("03/01/2025", "n/a", "$50.00"),
		usageRow("not a date", "5", "$5.00"),
		{"Date": "01/15/2025", " Bill Amount": "$1.00"},
		usageRow("02/01/2025", "8", "$40.00"),
	}
	res := NewBuilder(nil).Build(rows, Consumption, nil)

	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Points, 2)
	assert.True(t, dec("8").Equal(res.Points[0].Sum))
	assert.True(t, dec("20").Equal(res.Points[1].Sum))

	cost := NewBuilder(nil).Build(rows, Cost, nil)
	assert.Equal(t, 1, cost.Skipped)
	require.Len(t, cost.Points, 4)
	assertCumulative(t, cost.Points, decimal.Zero)
}

func TestBuild_OldestFirstInput(t *testing.T) {
	rows := newestFirst()
	reversed := make([]portal.Row, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}

	b := NewBuilder(nil)
	want := b.Build(rows, Cost, nil)
	got := b.Build(reversed, Cost, nil)

	require.Len(t, got.Points, len(want.Points))
	for i := range want.Points {
		assert.Equal(t, want.Points[i].PeriodStart, got.Points[i].PeriodStart)
		assert.True(t, want.Points[i].Sum.Equal(got.Points[i].Sum))
	}
}

func TestBuild_Empty(t *testing.T) {
	res := NewBuilder(nil).Build(nil, Consumption, nil)
	assert.Empty(t, res.Points)
	assert.Zero(t, res.Skipped)
	assert.True(t, res.Total.IsZero())

	marker := Point{PeriodStart: day(2025, 1, 1), Sum: decimal.Zero}
	res = NewBuilder(nil).Build([]portal.Row{}, Consumption, &marker)
	assert.Empty(t, res.Points)
	assert.Nil(t, res.Drift)
}

func TestBuild_MergesDuplicatePeriods(t *testing.T) {
	rows := []portal.Row{
		usageRow("03/01/2025", "10", "$50.00"),
		usageRow("03/01/2025", "2", "$9.00"),
		usageRow("02/01/2025", "8", "$40.00"),
	}
	res := NewBuilder(nil).Build(rows, Consumption, nil)

	require.Len(t, res.Points, 2)
	assert.True(t, dec("12").Equal(res.Points[1].Value))
	assert.True(t, dec("20").Equal(res.Points[1].Sum))
}

func TestBuild_ReportsDrift(t *testing.T) {
	marker := Point{PeriodStart: day(2025, 3, 1), Sum: dec("15")}
	res := NewBuilder(nil).Build(newestFirst(), Consumption, &marker)

	require.NotNil(t, res.Drift)
	assert.True(t, dec("18").Equal(res.Drift.Recomputed))
	assert.True(t, dec("3").Equal(res.Drift.Delta()))
	require.Len(t, res.Points, 1)
	assert.True(t, dec("27").Equal(res.Points[0].Sum))
	assertCumulative(t, res.Points, marker.Sum)
}

func TestBuild_OldestPeriodsRolledOff(t *testing.T) {
	b := NewBuilder(nil)
	first := b.Build([]portal.Row{
		usageRow("03/01/2025", "10", "$50.00"),
		usageRow("02/01/2025", "8", "$40.00"),
		usageRow("01/01/2025", "5", "$25.00"),
	}, Consumption, nil)
	require.Len(t, first.Points, 3)
	last := first.Points[2]
	require.True(t, dec("23").Equal(last.Sum))

	second := b.Build([]portal.Row{
		usageRow("04/01/2025", "7", "$35.00"),
		usageRow("03/01/2025", "10", "$50.00"),
		usageRow("02/01/2025", "8", "$40.00"),
	}, Consumption, &last)

	require.Len(t, second.Points, 1)
	assert.Equal(t, day(2025, 4, 1), second.Points[0].PeriodStart)
	assert.True(t, last.Sum.Add(second.Points[0].Value).Equal(second.Points[0].Sum))
	assert.True(t, dec("30").Equal(second.Points[0].Sum))

	require.NotNil(t, second.Drift)
	assert.True(t, dec("18").Equal(second.Drift.Recomputed))
	assert.True(t, dec("-5").Equal(second.Drift.Delta()))
}

func TestBuild_WholeHistoryBeforeMarkerGone(t *testing.T) {
	marker := Point{PeriodStart: day(2025, 3, 1), Sum: dec("23")}
	res := NewBuilder(nil).Build([]portal.Row{usageRow("04/01/2025", "7", "$35.00")}, Consumption, &marker)

	require.Len(t, res.Points, 1)
	assert.True(t, dec("30").Equal(res.Points[0].Sum))
	require.NotNil(t, res.Drift)
	assert.True(t, res.Drift.Recomputed.IsZero())
}

func TestParseRow_LeadingSpaceColumns(t *testing.T) {
	spaced := portal.Row{"Date": "03/01/2025", " Bill Amount": "$50.00"}
	plain := portal.Row{"Date": "03/01/2025", "Bill Amount": "$50.00"}

	_, a, err := ParseRow(spaced, Cost)
	require.NoError(t, err)
	_, b, err := ParseRow(plain, Cost)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	_, _, err = ParseRow(portal.Row{"Date": "03/01/2025", "Bill Amount": " "}, Cost)
	assert.ErrorIs(t, err, ErrMissingField)
	_, _, err = ParseRow(portal.Row{"Date": "03/01/2025", "Units Used": "x"}, Consumption)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestLookup(t *testing.T) {
	s, ok := Lookup(CostID)
	require.True(t, ok)
	assert.Equal(t, "USD", s.Unit)

	_, ok = Lookup("nisource:other")
	assert.False(t, ok)
}
