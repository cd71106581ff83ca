// Package testutil provides a fake vendor portal for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/sunbrief/internal/domain"
)

// FakePortal is an httptest server speaking the portal's auth and
// performance endpoints.
type FakePortal struct {
	Server *httptest.Server

	mu               sync.Mutex
	code             string
	challengeToken   string
	accessToken      string
	prospectID       string
	ptoDate          string
	productionBody   string
	challengeStatus  int
	respondStatus    int
	productionStatus int

	challengeCalls  int
	respondCalls    int
	productionCalls int
	lastQuery       url.Values
	lastRespondAuth string
	lastPhone       string
}

// NewFakePortal starts a portal that accepts code "123456".
func NewFakePortal(t *testing.T) *FakePortal {
	t.Helper()
	p := &FakePortal{
		code:           "123456",
		challengeToken: "challenge-token",
		accessToken:    "access-token",
		prospectID:     "prospect-42",
		ptoDate:        "2020-06-01T00:00:00.000Z",
		productionBody: "{}",
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the base URL of the fake portal.
func (p *FakePortal) URL() string {
	return p.Server.URL
}

// Code returns the code the portal accepts.
func (p *FakePortal) Code() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// SetPTODate overrides the contract ptoDate. Empty omits the contract date.
func (p *FakePortal) SetPTODate(date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ptoDate = date
}

// SetChallengeStatus makes the challenge endpoint answer with status.
func (p *FakePortal) SetChallengeStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challengeStatus = status
}

// SetRespondStatus makes the code-submission endpoint answer with status.
func (p *FakePortal) SetRespondStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respondStatus = status
}

// SetProductionStatus makes the production endpoint answer with status.
func (p *FakePortal) SetProductionStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.productionStatus = status
}

// SetProduction encodes records as a time-keyed JSON object, in order.
func (p *FakePortal) SetProduction(records []domain.ProductionRecord) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := r.Timestamp.Format("2006-01-02T15:04:05.000-07:00")
		value, _ := json.Marshal(map[string]any{
			"timestamp":     r.Date(),
			"deliveredKwh":  r.DeliveredKwh,
			"cumulativeKwh": r.CumulativeKwh,
		})
		fmt.Fprintf(&buf, "%q:%s", key, value)
	}
	buf.WriteByte('}')

	p.mu.Lock()
	defer p.mu.Unlock()
	p.productionBody = buf.String()
}

// ChallengeCalls returns how many challenges were requested.
func (p *FakePortal) ChallengeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.challengeCalls
}

// RespondCalls returns how many codes were submitted.
func (p *FakePortal) RespondCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.respondCalls
}

// ProductionCalls returns how many production queries were made.
func (p *FakePortal) ProductionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.productionCalls
}

// LastQuery returns the query of the most recent production request.
func (p *FakePortal) LastQuery() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuery
}

// LastRespondAuth returns the Authorization header of the last code submission.
func (p *FakePortal) LastRespondAuth() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRespondAuth
}

// LastPhone returns the phone number of the most recent auth request.
func (p *FakePortal) LastPhone() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPhone
}

func (p *FakePortal) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/portal-auth/request-passwordless":
		p.challengeCalls++
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.lastPhone, _ = body["phone"].(string)
		if p.challengeStatus != 0 {
			http.Error(w, `{"message":"unavailable"}`, p.challengeStatus)
			return
		}
		writeJSON(w, map[string]any{"token": p.challengeToken})

	case r.Method == http.MethodPost && r.URL.Path == "/portal-auth/respond-passwordless":
		p.respondCalls++
		p.lastRespondAuth = r.Header.Get("Authorization")
		var body struct {
			Phone string `json:"phone"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.lastPhone = body.Phone
		if p.respondStatus != 0 {
			http.Error(w, "maintenance", p.respondStatus)
			return
		}
		if p.lastRespondAuth != p.challengeToken || body.Code != p.code {
			http.Error(w, `{"message":"invalid code"}`, http.StatusUnauthorized)
			return
		}
		contract := map[string]any{}
		if p.ptoDate != "" {
			contract["ptoDate"] = p.ptoDate
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{"accessToken": p.accessToken},
			"opportunitiesWithContracts": []any{
				map[string]any{"prospect_id": p.prospectID, "contract": contract},
			},
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/performance-api/v1/cumulative-production/daily/"):
		p.productionCalls++
		p.lastQuery = r.URL.Query()
		if p.productionStatus != 0 {
			http.Error(w, `{"message":"denied"}`, p.productionStatus)
			return
		}
		prospect := strings.TrimPrefix(r.URL.Path, "/performance-api/v1/cumulative-production/daily/")
		if r.Header.Get("Authorization") != p.accessToken || prospect != p.prospectID {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(p.productionBody))

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
