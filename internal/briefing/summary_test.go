package briefing

import (
	"errors"
	"testing"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEquivalencies(t *testing.T) {
	tests := []struct {
		name    string
		entries []domain.EquivalencyEntry
		want    string
	}{
		{"empty", nil, ""},
		{"single", []domain.EquivalencyEntry{{Value: 500, Description: "gallons of gasoline"}}, "500 gallons of gasoline"},
		{
			"tiny value keeps decimals",
			[]domain.EquivalencyEntry{{Value: 0.004, Description: "trees"}, {Value: 12.7, Description: "homes"}},
			"0.004 trees and 12 homes",
		},
		{
			"three entries",
			[]domain.EquivalencyEntry{
				{Value: 3.9, Description: "trees"},
				{Value: 2, Description: "homes"},
				{Value: 1.2, Description: "tanker"},
			},
			"3 trees, 2 homes and 1 tanker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderEquivalencies(tt.entries))
		})
	}
}

func TestRollingSumExcludesOlderThanThirtyDays(t *testing.T) {
	records := []domain.ProductionRecord{
		{Timestamp: day(-35), DeliveredKwh: 10},
		{Timestamp: day(-29), DeliveredKwh: 5},
		{Timestamp: day(-10), DeliveredKwh: 3},
		{Timestamp: day(-1), DeliveredKwh: 2},
		{Timestamp: day(0), DeliveredKwh: 1},
	}

	assert.Equal(t, 11.0, RollingSum(records, fixedNow.AddDate(0, 0, -30)))
}

func TestSummarizeRounding(t *testing.T) {
	records := []domain.ProductionRecord{
		{Timestamp: day(-1), DeliveredKwh: 38.9, CumulativeKwh: 4958.2},
		{Timestamp: day(0), DeliveredKwh: 42.2, CumulativeKwh: 5000.5},
	}

	summary, err := Summarize(records, fixedNow, hst)
	require.NoError(t, err)
	assert.Equal(t, Summary{Today: 43, Yesterday: 38, Last30: 81, AllTime: 5001}, summary)
}

func TestSummarizeTodayIsLastRecordAsDelivered(t *testing.T) {
	// The feed is not re-sorted: the last element is today.
	records := []domain.ProductionRecord{
		{Timestamp: day(0), DeliveredKwh: 7, CumulativeKwh: 70},
		{Timestamp: day(-1), DeliveredKwh: 4, CumulativeKwh: 63},
	}

	summary, err := Summarize(records, fixedNow, hst)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Today)
	assert.Equal(t, int64(63), summary.AllTime)
}

func TestSummarizeIncompleteData(t *testing.T) {
	_, err := Summarize(nil, fixedNow, hst)
	assert.True(t, errors.Is(err, ErrDataIncomplete))

	_, err = Summarize([]domain.ProductionRecord{{Timestamp: day(0)}}, fixedNow, hst)
	assert.True(t, errors.Is(err, ErrDataIncomplete))
}

func TestFindByDate(t *testing.T) {
	records := []domain.ProductionRecord{{Timestamp: day(-3), DeliveredKwh: 9}}

	r, ok := FindByDate(records, "2024-05-17")
	require.True(t, ok)
	assert.Equal(t, 9.0, r.DeliveredKwh)

	_, ok = FindByDate(records, "2024-05-18")
	assert.False(t, ok)
}
