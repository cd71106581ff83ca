package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	return New(Options{BaseURL: server.URL, HTTPClient: server.Client(), RetryDelay: time.Millisecond})
}

func TestRequestPasswordlessSendsNullFields(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != requestPasswordlessPath {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatalf("missing X-Request-ID header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server).RequestPasswordless(context.Background(), "8085550100")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	assert.Equal(t, "8085550100", got["phone"])
	assert.Contains(t, got, "email")
	assert.Nil(t, got["email"])
	assert.Contains(t, got, "prospectId")
	assert.Nil(t, got["prospectId"])
}

func TestRequestPasswordlessMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).RequestPasswordless(context.Background(), "8085550100")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRespondPasswordless(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"data": {"accessToken": "acc-1"},
			"opportunitiesWithContracts": [
				{"prospect_id": 9876, "contract": {"ptoDate": "2019-05-14T10:00:00Z"}}
			]
		}`))
	}))
	defer server.Close()

	grant, err := newTestClient(server).RespondPasswordless(context.Background(), "8085550100", "4321", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", gotAuth)
	assert.Equal(t, "4321", gotBody["code"])
	assert.NotContains(t, gotBody, "prospectId")
	assert.Equal(t, &AuthGrant{AccessToken: "acc-1", ProspectID: "9876", ServiceStartDate: "2019-05-14"}, grant)
}

func TestRespondPasswordlessRequiresAllFields(t *testing.T) {
	bodies := map[string]string{
		"no access token": `{"data":{},"opportunitiesWithContracts":[{"prospect_id":"p","contract":{"ptoDate":"2019-05-14"}}]}`,
		"no opportunity":  `{"data":{"accessToken":"a"},"opportunitiesWithContracts":[]}`,
		"no prospect":     `{"data":{"accessToken":"a"},"opportunitiesWithContracts":[{"contract":{"ptoDate":"2019-05-14"}}]}`,
		"no contract":     `{"data":{"accessToken":"a"},"opportunitiesWithContracts":[{"prospect_id":"p"}]}`,
		"bad date":        `{"data":{"accessToken":"a"},"opportunitiesWithContracts":[{"prospect_id":"p","contract":{"ptoDate":"soon"}}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestClient(server).RespondPasswordless(context.Background(), "8085550100", "1", "tok")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestStatusErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server).RespondPasswordless(context.Background(), "8085550100", "1", "tok")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsTransportError(err))
	assert.Equal(t, int32(1), calls.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "denied", statusErr.Body)
}

func TestTransportFailureRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Fatalf("hijack failed: %v", err)
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-2"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server).RequestPasswordless(context.Background(), "8085550100")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestUnreachablePortalIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(server)
	server.Close()

	_, err := client.RequestPasswordless(context.Background(), "8085550100")
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestCumulativeProductionQuery(t *testing.T) {
	loc := time.FixedZone("HST", -10*60*60)
	var gotPath, gotAuth string
	var gotStart, gotEnd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("startDate")
		gotEnd = r.URL.Query().Get("endDate")
		_, _ = w.Write([]byte(`[
			{"timestamp":"2024-05-01","deliveredKwh":10.5,"cumulativeKwh":100.5},
			{"timestamp":"2024-05-02","deliveredKwh":null,"cumulativeKwh":100.5}
		]`))
	}))
	defer server.Close()

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	end := time.Date(2024, 5, 3, 23, 59, 59, 999_000_000, loc)
	records, raw, err := newTestClient(server).CumulativeProduction(context.Background(), "acc", "p-1", start, end)
	require.NoError(t, err)

	assert.Equal(t, "/performance-api/v1/cumulative-production/daily/p-1", gotPath)
	assert.Equal(t, "acc", gotAuth)
	assert.Equal(t, "2024-05-01T00:00:00.000-10:00", gotStart)
	assert.Equal(t, "2024-05-03T23:59:59.999-10:00", gotEnd)
	assert.NotEmpty(t, raw)

	require.Len(t, records, 2)
	assert.Equal(t, "2024-05-01", records[0].Date())
	assert.Equal(t, 10.5, records[0].DeliveredKwh)
	assert.Equal(t, 0.0, records[1].DeliveredKwh)
	assert.Equal(t, loc, records[0].Timestamp.Location())
}
