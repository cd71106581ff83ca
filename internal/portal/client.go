// Package portal provides an HTTP client for the solar vendor's customer portal.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/google/uuid"
)

const (
	requestPasswordlessPath = "/portal-auth/request-passwordless"
	respondPasswordlessPath = "/portal-auth/respond-passwordless"
	productionPathPrefix    = "/performance-api/v1/cumulative-production/daily/"

	// RangeLayout is the ISO 8601 layout for production range bounds.
	RangeLayout = "2006-01-02T15:04:05.000-07:00"

	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
	HTTPClient *http.Client // overrides Timeout when set
	Logger     *slog.Logger
}

// Client talks to the portal's passwordless-auth and performance endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// AuthGrant is the part of a successful challenge response the session needs.
type AuthGrant struct {
	AccessToken      string
	ProspectID       string
	ServiceStartDate string // YYYY-MM-DD
}

// New creates a portal client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}
}

type passwordlessRequest struct {
	Email      *string `json:"email"`
	Phone      string  `json:"phone"`
	ProspectID *string `json:"prospectId,omitempty"`
	Code       string  `json:"code,omitempty"`
}

// RequestPasswordless asks the portal to send a code to phone and returns
// the challenge token.
func (c *Client) RequestPasswordless(ctx context.Context, phone string) (string, error) {
	// prospectId is sent as an explicit null.
	body := map[string]any{
		"email":      nil,
		"phone":      phone,
		"prospectId": nil,
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, requestPasswordlessPath, nil, "", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: missing token", ErrMalformedResponse)
	}
	return resp.Token, nil
}

type respondResponse struct {
	Data struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
	OpportunitiesWithContracts []struct {
		ProspectID flexString `json:"prospect_id"`
		Contract   *struct {
			PTODate string `json:"ptoDate"`
		} `json:"contract"`
	} `json:"opportunitiesWithContracts"`
}

// RespondPasswordless submits code for the challenge identified by
// challengeToken. All three grant fields are required.
func (c *Client) RespondPasswordless(ctx context.Context, phone, code, challengeToken string) (*AuthGrant, error) {
	body := passwordlessRequest{Phone: phone, Code: code}

	var resp respondResponse
	if err := c.doJSON(ctx, http.MethodPost, respondPasswordlessPath, nil, challengeToken, body, &resp); err != nil {
		return nil, err
	}

	if resp.Data.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing data.accessToken", ErrMalformedResponse)
	}
	if len(resp.OpportunitiesWithContracts) == 0 {
		return nil, fmt.Errorf("%w: missing opportunitiesWithContracts", ErrMalformedResponse)
	}
	opp := resp.OpportunitiesWithContracts[0]
	if opp.ProspectID == "" {
		return nil, fmt.Errorf("%w: missing prospect_id", ErrMalformedResponse)
	}
	if opp.Contract == nil || opp.Contract.PTODate == "" {
		return nil, fmt.Errorf("%w: missing contract.ptoDate", ErrMalformedResponse)
	}
	startDate, err := normalizeDate(opp.Contract.PTODate)
	if err != nil {
		return nil, fmt.Errorf("%w: ptoDate %q", ErrMalformedResponse, opp.Contract.PTODate)
	}

	return &AuthGrant{
		AccessToken:      resp.Data.AccessToken,
		ProspectID:       string(opp.ProspectID),
		ServiceStartDate: startDate,
	}, nil
}

// CumulativeProduction fetches daily production between start and end.
// Record dates are interpreted in start's location. The raw body is
// returned alongside the parsed records.
func (c *Client) CumulativeProduction(ctx context.Context, accessToken, prospectID string, start, end time.Time) ([]domain.ProductionRecord, []byte, error) {
	query := url.Values{}
	query.Set("startDate", start.Format(RangeLayout))
	query.Set("endDate", end.Format(RangeLayout))

	var raw json.RawMessage
	path := productionPathPrefix + url.PathEscape(prospectID)
	if err := c.doJSON(ctx, http.MethodGet, path, query, accessToken, nil, &raw); err != nil {
		return nil, nil, err
	}

	records, err := DecodeProduction(raw, start.Location())
	if err != nil {
		return nil, nil, err
	}
	return records, raw, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, authorization string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.send(ctx, method, target, authorization, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

// send performs the request, retrying once after retryDelay when the
// portal could not be reached. HTTP status errors are never retried.
func (c *Client) send(ctx context.Context, method, target, authorization string, payload []byte) (*http.Response, error) {
	const attempts = 2

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		requestID := uuid.NewString()
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			c.logger.Debug("Portal request completed",
				"method", method,
				"path", req.URL.Path,
				"status", resp.StatusCode,
				"request_id", requestID)
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		c.logger.Warn("Portal request failed, retrying",
			"method", method,
			"path", req.URL.Path,
			"request_id", requestID,
			"delay", c.retryDelay,
			"error", err)

		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, &TransportError{Op: method + " " + target, Err: ctx.Err()}
		}
	}

	return nil, &TransportError{Op: method + " " + target, Err: lastErr}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

// normalizeDate reduces an ISO date or timestamp to YYYY-MM-DD.
func normalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < len(domain.DateLayout) {
		return "", fmt.Errorf("date too short: %q", raw)
	}
	day := raw[:len(domain.DateLayout)]
	if _, err := time.Parse(domain.DateLayout, day); err != nil {
		return "", err
	}
	return day, nil
}
