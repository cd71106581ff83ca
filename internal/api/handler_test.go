//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/sunbrief/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		result domain.Result
		want   int
	}{
		{domain.Success("ok", nil), http.StatusOK},
		{domain.Failure(domain.KindAuthRequired, "auth", nil), http.StatusUnauthorized},
		{domain.Failure(domain.KindInvalidCode, "bad", nil), http.StatusBadRequest},
		{domain.Failure(domain.KindDataIncomplete, "incomplete data", nil), http.StatusUnprocessableEntity},
		{domain.Failure(domain.KindTransport, "down", nil), http.StatusBadGateway},
		{domain.Failure(domain.KindUnknown, "something went wrong", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.result); got != tt.want {
			t.Errorf("StatusFor(%q) = %d, want %d", tt.result.Kind, got, tt.want)
		}
	}
}
