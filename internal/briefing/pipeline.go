// Package briefing fetches the production series for an authenticated
// session and turns it into a daily narrative.
package briefing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/ashureev/sunbrief/internal/portal"
	"github.com/ashureev/sunbrief/internal/store"
)

// DefaultCategories are used when a briefing names no categories.
var DefaultCategories = []string{"gasoline", "coal", "propane"}

const (
	authMessage = "auth"
	authData    = "A verification code has been sent to your phone. Submit it to finish signing in, then ask again."
)

// Sessions is the session-manager surface the pipeline relies on.
type Sessions interface {
	IssueChallenge(ctx context.Context) bool
	CompleteChallenge(ctx context.Context, code string) domain.Result
	Credentials(ctx context.Context) (domain.Credentials, bool, error)
	CredentialsOrChallenge(ctx context.Context) (domain.Credentials, bool, error)
	Invalidate(ctx context.Context) error
}

// ProductionSource queries the daily production feed.
type ProductionSource interface {
	CumulativeProduction(ctx context.Context, accessToken, prospectID string, start, end time.Time) ([]domain.ProductionRecord, []byte, error)
}

// Calculator converts kilowatt hours into equivalency entries, one per
// requested category and in the same order.
type Calculator interface {
	Calculate(kwh float64, categories []string) ([]domain.EquivalencyEntry, error)
}

// Options tunes a Pipeline.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Pipeline is the public surface of the briefing client. Every method
// returns a domain.Result envelope.
type Pipeline struct {
	sessions Sessions
	source   ProductionSource
	store    store.SessionStore
	calc     Calculator
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a briefing pipeline.
func New(sessions Sessions, source ProductionSource, sessionStore store.SessionStore, calc Calculator, opts Options) *Pipeline {
	p := &Pipeline{
		sessions: sessions,
		source:   source,
		store:    sessionStore,
		calc:     calc,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "briefing")
	return p
}

// IssueChallenge starts the passwordless flow.
func (p *Pipeline) IssueChallenge(ctx context.Context) domain.Result {
	if !p.sessions.IssueChallenge(ctx) {
		return domain.Failure(domain.KindTransport, "authentication unavailable", "Could not request a verification code. Try again later.")
	}
	return domain.Success("challenge issued", "A verification code has been sent to your phone.")
}

// CompleteChallenge finishes the passwordless flow with code.
func (p *Pipeline) CompleteChallenge(ctx context.Context, code string) domain.Result {
	return p.sessions.CompleteChallenge(ctx, code)
}

// ProductionData fetches the production series from the service start date
// through the end of tomorrow. On success Data holds []domain.ProductionRecord.
func (p *Pipeline) ProductionData(ctx context.Context) domain.Result {
	creds, ok, err := p.sessions.CredentialsOrChallenge(ctx)
	if err != nil {
		p.logger.Error("Failed to load session", "error", err)
		return domain.Failure(domain.KindUnknown, err.Error(), nil)
	}
	if !ok {
		return authRequired()
	}

	start, end := queryRange(creds.ServiceStartDate, p.now(), p.loc)
	records, raw, err := p.source.CumulativeProduction(ctx, creds.AccessToken, creds.ProspectID, start, end)
	if err != nil {
		return p.productionFailure(ctx, err)
	}

	if err := p.store.Set(ctx, store.KeyCumulativeProduction, string(raw)); err != nil {
		p.logger.Warn("Failed to cache production response", "error", err)
	}

	p.logger.Info("Production data retrieved", "records", len(records), "start", start, "end", end)
	return domain.Success("production data retrieved", records)
}

func (p *Pipeline) productionFailure(ctx context.Context, err error) domain.Result {
	switch {
	case portal.IsAuthError(err):
		// The stored token expired server-side: drop it and prime a new code round.
		p.logger.Warn("Access token rejected, starting a new challenge", "error", err)
		if invErr := p.sessions.Invalidate(ctx); invErr != nil {
			p.logger.Error("Failed to invalidate session", "error", invErr)
		}
		p.sessions.IssueChallenge(ctx)
		return authRequired()
	case errors.Is(err, portal.ErrMalformedResponse):
		p.logger.Error("Malformed production response", "error", err)
		return domain.Failure(domain.KindUnknown, err.Error(), nil)
	default:
		p.logger.Error("Failed to fetch production data", "error", err)
		return domain.Failure(domain.KindTransport, err.Error(), nil)
	}
}

func authRequired() domain.Result {
	return domain.Failure(domain.KindAuthRequired, authMessage, authData)
}

// queryRange returns start-date midnight through tomorrow 23:59:59.999,
// both in loc. The extra day covers the portal's own time zone rounding.
func queryRange(startDate, now time.Time, loc *time.Location) (time.Time, time.Time) {
	startDate = startDate.In(loc)
	start := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, loc)

	tomorrow := now.In(loc).AddDate(0, 0, 1)
	end := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}
