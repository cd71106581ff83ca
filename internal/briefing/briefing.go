package briefing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
)

// ErrDataIncomplete means a record the briefing needs is missing from the feed.
var ErrDataIncomplete = errors.New("incomplete data")

const (
	genericFailure  = "something went wrong"
	authFailureData = "Please send the verification code texted to your phone to finish signing in."

	narrativeTemplate = "So far your system has generated %d kilowatt hours today, %d kilowatt hours yesterday, " +
		"%d kilowatt hours in the last 30 days and an all time total of %d kilowatt hours. " +
		"This means you've already prevented CO₂ emissions equivalent to roughly %s. Congratulations!"
)

// Summary holds the rounded production figures for a briefing.
type Summary struct {
	Today     int64 // ceiling of today's delivered kWh
	Yesterday int64 // floor of yesterday's delivered kWh
	Last30    int64 // floor of the rolling 30 day sum
	AllTime   int64 // today's cumulative kWh rounded to nearest
}

// DailyBriefing fetches production and renders the narrative with an
// equivalency for each category. Empty categories fall back to
// DefaultCategories.
func (p *Pipeline) DailyBriefing(ctx context.Context, categories []string) (result domain.Result) {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	production := p.ProductionData(ctx)
	if !production.OK() {
		kind := production.Kind
		if kind == "" {
			kind = domain.KindUnknown
		}
		return domain.Failure(kind, authMessage, authFailureData)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Briefing computation panicked", "panic", r)
			result = domain.Failure(domain.KindUnknown, genericFailure, nil)
		}
	}()

	records, ok := production.Data.([]domain.ProductionRecord)
	if !ok {
		return domain.Failure(domain.KindUnknown, genericFailure, nil)
	}

	summary, err := Summarize(records, p.now(), p.loc)
	if err != nil {
		p.logger.Warn("Production data incomplete", "error", err)
		return domain.Failure(domain.KindDataIncomplete, ErrDataIncomplete.Error(), err.Error())
	}

	entries, err := p.calc.Calculate(float64(summary.AllTime), categories)
	if err != nil {
		p.logger.Error("Equivalency calculation failed", "error", err, "categories", categories)
		return domain.Failure(domain.KindUnknown, genericFailure, nil)
	}

	result = domain.Success("briefing", Narrative(summary, entries))
	result.EquivalencyBreakdown = entries
	return result
}

// Summarize derives the briefing figures. Today is the last record of the
// feed as delivered; yesterday is looked up by date relative to now.
func Summarize(records []domain.ProductionRecord, now time.Time, loc *time.Location) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, fmt.Errorf("%w: no production records", ErrDataIncomplete)
	}
	now = now.In(loc)
	today := records[len(records)-1]

	yesterdayDate := now.AddDate(0, 0, -1).Format(domain.DateLayout)
	yesterday, ok := FindByDate(records, yesterdayDate)
	if !ok {
		return Summary{}, fmt.Errorf("%w: no record for %s", ErrDataIncomplete, yesterdayDate)
	}

	return Summary{
		Today:     int64(math.Ceil(today.DeliveredKwh)),
		Yesterday: int64(math.Floor(yesterday.DeliveredKwh)),
		Last30:    int64(math.Floor(RollingSum(records, now.AddDate(0, 0, -30)))),
		AllTime:   int64(math.Round(today.CumulativeKwh)),
	}, nil
}

// FindByDate returns the first record whose calendar date is date (YYYY-MM-DD).
func FindByDate(records []domain.ProductionRecord, date string) (domain.ProductionRecord, bool) {
	for _, r := range records {
		if r.Date() == date {
			return r, true
		}
	}
	return domain.ProductionRecord{}, false
}

// RollingSum adds delivered kWh for records strictly after since.
func RollingSum(records []domain.ProductionRecord, since time.Time) float64 {
	var sum float64
	for _, r := range records {
		if r.Timestamp.After(since) {
			sum += r.DeliveredKwh
		}
	}
	return sum
}

// RenderEquivalencies renders entries as "<N> <description>" joined with
// commas, the final separator being " and ". N is the floored value, or the
// value to three decimals when the floor is zero.
func RenderEquivalencies(entries []domain.EquivalencyEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, formatQuantity(e.Value)+" "+e.Description)
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func formatQuantity(value float64) string {
	floored := math.Floor(value)
	if floored == 0 {
		return strconv.FormatFloat(value, 'f', 3, 64)
	}
	return strconv.FormatFloat(floored, 'f', 0, 64)
}

// Narrative formats the briefing sentence.
func Narrative(s Summary, entries []domain.EquivalencyEntry) string {
	return fmt.Sprintf(narrativeTemplate, s.Today, s.Yesterday, s.Last30, s.AllTime, RenderEquivalencies(entries))
}
