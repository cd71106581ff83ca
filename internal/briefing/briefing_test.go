package briefing

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/ashureev/sunbrief/internal/portal"
	"github.com/ashureev/sunbrief/internal/session"
	"github.com/ashureev/sunbrief/internal/store"
	"github.com/ashureev/sunbrief/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hst = time.FixedZone("HST", -10*60*60)

// fixedNow is mid-afternoon so "now minus 30 days" falls inside a day.
var fixedNow = time.Date(2024, 5, 20, 15, 0, 0, 0, hst)

func day(offset int) time.Time {
	return time.Date(2024, 5, 20+offset, 0, 0, 0, 0, hst)
}

type fakeCalculator struct {
	entries []domain.EquivalencyEntry
	err     error
	gotKwh  float64
	gotCats []string
}

func (f *fakeCalculator) Calculate(kwh float64, categories []string) ([]domain.EquivalencyEntry, error) {
	f.gotKwh = kwh
	f.gotCats = categories
	return f.entries, f.err
}

type harness struct {
	pipeline *Pipeline
	manager  *session.Manager
	portal   *testutil.FakePortal
	store    store.SessionStore
	calc     *fakeCalculator
}

func newHarness(t *testing.T, phone string) *harness {
	t.Helper()
	fake := testutil.NewFakePortal(t)
	s, err := store.NewBolt(filepath.Join(t.TempDir(), "session.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	client := portal.New(portal.Options{BaseURL: fake.URL(), HTTPClient: fake.Server.Client()})
	mgr := session.NewManager(phone, client, s, hst, nil)
	calc := &fakeCalculator{entries: []domain.EquivalencyEntry{
		{Category: "gasoline", Value: 500, Description: "gallons of gasoline"},
	}}
	p := New(mgr, client, s, calc, Options{Location: hst, Now: func() time.Time { return fixedNow }})
	return &harness{pipeline: p, manager: mgr, portal: fake, store: s, calc: calc}
}

func (h *harness) authenticate(t *testing.T) {
	t.Helper()
	result := h.pipeline.CompleteChallenge(context.Background(), h.portal.Code())
	require.True(t, result.OK(), "authentication failed: %+v", result)
}

func TestDailyBriefingEndToEnd(t *testing.T) {
	h := newHarness(t, "8085550201")
	h.portal.SetProduction([]domain.ProductionRecord{
		{Timestamp: day(-40), DeliveredKwh: 900, CumulativeKwh: 3799.7},
		{Timestamp: day(-2), DeliveredKwh: 1119.6, CumulativeKwh: 4919.3},
		{Timestamp: day(-1), DeliveredKwh: 38.9, CumulativeKwh: 4958.2},
		{Timestamp: day(0), DeliveredKwh: 42.2, CumulativeKwh: 5000.4},
	})
	h.authenticate(t)

	result := h.pipeline.DailyBriefing(context.Background(), []string{"gasoline"})
	require.True(t, result.OK(), "briefing failed: %+v", result)

	want := "So far your system has generated 43 kilowatt hours today, 38 kilowatt hours yesterday, " +
		"1200 kilowatt hours in the last 30 days and an all time total of 5000 kilowatt hours. " +
		"This means you've already prevented CO₂ emissions equivalent to roughly 500 gallons of gasoline. Congratulations!"
	assert.Equal(t, want, result.Data)
	assert.Equal(t, h.calc.entries, result.EquivalencyBreakdown)
	assert.Equal(t, 5000.0, h.calc.gotKwh)
	assert.Equal(t, []string{"gasoline"}, h.calc.gotCats)
}

func TestDailyBriefingDefaultsCategories(t *testing.T) {
	h := newHarness(t, "8085550202")
	h.portal.SetProduction([]domain.ProductionRecord{
		{Timestamp: day(-1), DeliveredKwh: 1, CumulativeKwh: 1},
		{Timestamp: day(0), DeliveredKwh: 1, CumulativeKwh: 2},
	})
	h.authenticate(t)

	result := h.pipeline.DailyBriefing(context.Background(), nil)
	require.True(t, result.OK())
	assert.Equal(t, []string{"gasoline", "coal", "propane"}, h.calc.gotCats)
}

func TestDailyBriefingWithoutAuthentication(t *testing.T) {
	h := newHarness(t, "8085550203")

	result := h.pipeline.DailyBriefing(context.Background(), nil)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, "auth", result.Message)
	assert.Equal(t, domain.KindAuthRequired, result.Kind)
	assert.Empty(t, result.EquivalencyBreakdown)
	assert.Equal(t, 1, h.portal.ChallengeCalls(), "expected a challenge to prime the next code round")
	assert.Equal(t, 0, h.portal.ProductionCalls())
}

func TestDailyBriefingMissingYesterday(t *testing.T) {
	h := newHarness(t, "8085550204")
	h.portal.SetProduction([]domain.ProductionRecord{
		{Timestamp: day(-2), DeliveredKwh: 5, CumulativeKwh: 10},
		{Timestamp: day(0), DeliveredKwh: 5, CumulativeKwh: 15},
	})
	h.authenticate(t)

	result := h.pipeline.DailyBriefing(context.Background(), nil)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.KindDataIncomplete, result.Kind)
	assert.Equal(t, "incomplete data", result.Message)
}

func TestDailyBriefingCalculatorFailure(t *testing.T) {
	h := newHarness(t, "8085550205")
	h.portal.SetProduction([]domain.ProductionRecord{
		{Timestamp: day(-1), DeliveredKwh: 1, CumulativeKwh: 1},
		{Timestamp: day(0), DeliveredKwh: 1, CumulativeKwh: 2},
	})
	h.authenticate(t)
	h.calc.err = errors.New("unknown category")

	result := h.pipeline.DailyBriefing(context.Background(), []string{"unicorns"})
	assert.Equal(t, domain.KindUnknown, result.Kind)
	assert.Equal(t, "something went wrong", result.Message)
}

func TestProductionDataQueryAndCache(t *testing.T) {
	h := newHarness(t, "8085550206")
	records := []domain.ProductionRecord{
		{Timestamp: day(-1), DeliveredKwh: 12.5, CumulativeKwh: 100},
		{Timestamp: day(0), DeliveredKwh: 3.25, CumulativeKwh: 103.25},
	}
	h.portal.SetProduction(records)
	h.authenticate(t)

	ctx := context.Background()
	first := h.pipeline.ProductionData(ctx)
	require.True(t, first.OK(), "%+v", first)

	query := h.portal.LastQuery()
	assert.Equal(t, "2020-06-01T00:00:00.000-10:00", query.Get("startDate"))
	assert.Equal(t, "2024-05-21T23:59:59.999-10:00", query.Get("endDate"))

	got, ok := first.Data.([]domain.ProductionRecord)
	require.True(t, ok)
	assert.Equal(t, records, got)

	cached, ok, err := h.store.Get(ctx, store.KeyCumulativeProduction)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, cached, "2024-05-20")

	second := h.pipeline.ProductionData(ctx)
	require.True(t, second.OK())
	assert.Equal(t, first.Data, second.Data)
}

func TestProductionDataExpiredToken(t *testing.T) {
	h := newHarness(t, "8085550207")
	h.authenticate(t)
	challengesBefore := h.portal.ChallengeCalls()
	h.portal.SetProductionStatus(http.StatusUnauthorized)

	ctx := context.Background()
	result := h.pipeline.ProductionData(ctx)
	assert.Equal(t, domain.KindAuthRequired, result.Kind)

	_, ok, err := h.manager.Credentials(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "expected credentials dropped after 401")
	assert.Equal(t, challengesBefore+1, h.portal.ChallengeCalls())
}

func TestProductionDataTransportFailure(t *testing.T) {
	h := newHarness(t, "8085550208")
	h.authenticate(t)
	h.portal.SetProductionStatus(http.StatusBadGateway)

	result := h.pipeline.ProductionData(context.Background())
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.KindTransport, result.Kind)
	assert.Nil(t, result.Data)

	_, ok, _ := h.manager.Credentials(context.Background())
	assert.True(t, ok, "non-auth failures keep the session")
}

func TestIssueChallengeEnvelope(t *testing.T) {
	h := newHarness(t, "8085550209")
	assert.True(t, h.pipeline.IssueChallenge(context.Background()).OK())

	h.portal.SetChallengeStatus(http.StatusInternalServerError)
	result := h.pipeline.IssueChallenge(context.Background())
	assert.False(t, result.OK())
	assert.Equal(t, domain.KindTransport, result.Kind)
}
