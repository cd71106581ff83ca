// Package domain contains core domain types for the sunbrief client.
package domain

import (
	"time"
)

// DateLayout is the calendar-date format used by the portal and the store.
const DateLayout = "2006-01-02"

// SessionState is the position of a session in the passwordless flow.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateChallengeIssued SessionState = "challenge_issued"
	StateAuthenticated   SessionState = "authenticated"
)

// Session holds the persisted authentication artifacts for one phone number.
type Session struct {
	PhoneNumber      string    `json:"phone_number"`
	ChallengeToken   string    `json:"challenge_token,omitempty"`
	AccessToken      string    `json:"access_token,omitempty"`
	ProspectID       string    `json:"prospect_id,omitempty"`
	ServiceStartDate time.Time `json:"service_start_date,omitempty"`
}

// Credentials is the read-only view of a session needed to query production.
type Credentials struct {
	AccessToken      string
	ProspectID       string
	ServiceStartDate time.Time
}

// HasCredentials returns true if the access token and its companion fields
// are all present.
func (s *Session) HasCredentials() bool {
	return s.AccessToken != "" && s.ProspectID != "" && !s.ServiceStartDate.IsZero()
}

// Credentials returns a copy of the access credentials.
// The second value is false when the session is not authenticated.
func (s *Session) Credentials() (Credentials, bool) {
	if !s.HasCredentials() {
		return Credentials{}, false
	}
	return Credentials{
		AccessToken:      s.AccessToken,
		ProspectID:       s.ProspectID,
		ServiceStartDate: s.ServiceStartDate,
	}, true
}

// State derives the flow position from the stored fields.
func (s *Session) State() SessionState {
	switch {
	case s.HasCredentials():
		return StateAuthenticated
	case s.ChallengeToken != "":
		return StateChallengeIssued
	default:
		return StateUnauthenticated
	}
}
