// Package session manages the passwordless authentication lifecycle and the
// durable session state for one phone number.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/ashureev/sunbrief/internal/portal"
	"github.com/ashureev/sunbrief/internal/store"
)

// phoneLocks serializes read-modify-persist sequences per phone number.
var phoneLocks sync.Map

// Authenticator is the portal surface the manager needs.
type Authenticator interface {
	RequestPasswordless(ctx context.Context, phone string) (string, error)
	RespondPasswordless(ctx context.Context, phone, code, challengeToken string) (*portal.AuthGrant, error)
}

// Manager owns the passwordless flow and the persisted session.
type Manager struct {
	phone  string
	auth   Authenticator
	store  store.SessionStore
	loc    *time.Location
	logger *slog.Logger
}

// NewManager creates a session manager for phone. Start dates are
// interpreted in loc.
func NewManager(phone string, auth Authenticator, sessionStore store.SessionStore, loc *time.Location, logger *slog.Logger) *Manager {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		phone:  phone,
		auth:   auth,
		store:  sessionStore,
		loc:    loc,
		logger: logger.With("component", "session"),
	}
}

func (m *Manager) lock() func() {
	l, _ := phoneLocks.LoadOrStore(m.phone, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// IssueChallenge asks the portal to send a verification code and persists
// the challenge token. It returns false on any failure.
func (m *Manager) IssueChallenge(ctx context.Context) bool {
	unlock := m.lock()
	defer unlock()
	return m.issueChallenge(ctx)
}

func (m *Manager) issueChallenge(ctx context.Context) bool {
	token, err := m.auth.RequestPasswordless(ctx, m.phone)
	if err != nil {
		m.logger.Warn("Failed to issue challenge", "error", err)
		return false
	}
	if err := m.store.Set(ctx, store.KeyChallengeToken, token); err != nil {
		m.logger.Error("Failed to persist challenge token", "error", err)
		return false
	}
	m.logger.Info("Challenge issued")
	return true
}

// CompleteChallenge exchanges code for an access token. When no challenge
// token is stored, a new challenge is issued first.
func (m *Manager) CompleteChallenge(ctx context.Context, code string) domain.Result {
	unlock := m.lock()
	defer unlock()

	rejected := fmt.Sprintf("verification code %s was rejected", code)

	token, ok, err := m.store.Get(ctx, store.KeyChallengeToken)
	if err != nil {
		m.logger.Error("Failed to load challenge token", "error", err)
		return domain.Failure(domain.KindUnknown, err.Error(), rejected)
	}
	if !ok || token == "" {
		m.logger.Info("No challenge token stored, issuing a new challenge")
		if !m.issueChallenge(ctx) {
			return domain.Failure(domain.KindTransport, "unable to issue a verification challenge", rejected)
		}
		token, _, err = m.store.Get(ctx, store.KeyChallengeToken)
		if err != nil {
			return domain.Failure(domain.KindUnknown, err.Error(), rejected)
		}
	}

	grant, err := m.auth.RespondPasswordless(ctx, m.phone, code, token)
	if err != nil {
		kind := respondFailureKind(err)
		m.logger.Warn("Challenge response failed", "kind", kind, "error", err)
		return domain.Failure(kind, err.Error(), rejected)
	}

	if err := m.store.SetMany(ctx, map[string]string{
		store.KeyAccessToken: grant.AccessToken,
		store.KeyProspectID:  grant.ProspectID,
		store.KeyStartDate:   grant.ServiceStartDate,
	}); err != nil {
		m.logger.Error("Failed to persist credentials", "error", err)
		return domain.Failure(domain.KindUnknown, err.Error(), rejected)
	}

	m.logger.Info("Session authenticated", "prospect_id", grant.ProspectID, "start_date", grant.ServiceStartDate)
	return domain.Success("authenticated",
		fmt.Sprintf("Phone number verified; production data for prospect %s is now available.", grant.ProspectID))
}

// respondFailureKind classifies a failed code submission. Only a 4xx
// answer means the code itself was refused.
func respondFailureKind(err error) domain.ErrorKind {
	switch {
	case portal.IsTransportError(err), portal.IsServerError(err):
		return domain.KindTransport
	case errors.Is(err, portal.ErrMalformedResponse):
		return domain.KindUnknown
	default:
		var statusErr *portal.StatusError
		if errors.As(err, &statusErr) {
			return domain.KindInvalidCode
		}
		return domain.KindUnknown
	}
}

// Credentials reloads the access credentials from the store. The bool is
// false when the session is not authenticated. No challenge is issued.
func (m *Manager) Credentials(ctx context.Context) (domain.Credentials, bool, error) {
	sess, err := m.load(ctx)
	if err != nil {
		return domain.Credentials{}, false, err
	}
	creds, ok := sess.Credentials()
	return creds, ok, nil
}

// CredentialsOrChallenge returns the stored credentials or, when absent,
// issues a challenge so the next code-entry round can complete it. The
// whole sequence runs under the per-phone lock.
func (m *Manager) CredentialsOrChallenge(ctx context.Context) (domain.Credentials, bool, error) {
	unlock := m.lock()
	defer unlock()

	creds, ok, err := m.Credentials(ctx)
	if err != nil || ok {
		return creds, ok, err
	}
	m.issueChallenge(ctx)
	return domain.Credentials{}, false, nil
}

// Invalidate drops the access credentials, keeping any challenge token.
func (m *Manager) Invalidate(ctx context.Context) error {
	unlock := m.lock()
	defer unlock()

	if err := m.store.Delete(ctx, store.KeyAccessToken, store.KeyProspectID, store.KeyStartDate); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	m.logger.Info("Session credentials invalidated")
	return nil
}

// Session returns a snapshot of the persisted session.
func (m *Manager) Session(ctx context.Context) (domain.Session, error) {
	return m.load(ctx)
}

func (m *Manager) load(ctx context.Context) (domain.Session, error) {
	sess := domain.Session{PhoneNumber: m.phone}

	fields := []struct {
		key string
		dst *string
	}{
		{store.KeyChallengeToken, &sess.ChallengeToken},
		{store.KeyAccessToken, &sess.AccessToken},
		{store.KeyProspectID, &sess.ProspectID},
	}
	for _, f := range fields {
		value, _, err := m.store.Get(ctx, f.key)
		if err != nil {
			return domain.Session{}, fmt.Errorf("load session: %w", err)
		}
		*f.dst = value
	}

	startDate, ok, err := m.store.Get(ctx, store.KeyStartDate)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if ok && startDate != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, startDate, m.loc)
		if err != nil {
			m.logger.Warn("Ignoring unparseable start date", "start_date", startDate, "error", err)
		} else {
			sess.ServiceStartDate = parsed
		}
	}

	return sess, nil
}
