package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/ashureev/sunbrief/internal/store"
	"github.com/go-chi/chi/v5"
)

// Briefer is the briefing surface exposed over HTTP.
type Briefer interface {
	IssueChallenge(ctx context.Context) domain.Result
	CompleteChallenge(ctx context.Context, code string) domain.Result
	ProductionData(ctx context.Context) domain.Result
	DailyBriefing(ctx context.Context, categories []string) domain.Result
}

// SessionReader reports the persisted session state.
type SessionReader interface {
	Session(ctx context.Context) (domain.Session, error)
}

// BriefingHandler handles auth, production and briefing endpoints.
type BriefingHandler struct {
	briefer           Briefer
	sessions          SessionReader
	defaultCategories []string
}

// NewBriefingHandler creates a new briefing handler.
func NewBriefingHandler(briefer Briefer, sessions SessionReader, defaultCategories []string) *BriefingHandler {
	return &BriefingHandler{
		briefer:           briefer,
		sessions:          sessions,
		defaultCategories: defaultCategories,
	}
}

// RegisterRoutes registers briefing routes.
func (h *BriefingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/challenge", h.IssueChallenge)
		r.Post("/auth/verify", h.Verify)
		r.Get("/session", h.GetSession)
		r.Get("/production", h.GetProduction)
		r.Get("/briefing", h.GetBriefing)
	})
}

// IssueChallenge asks the portal to text a verification code.
func (h *BriefingHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	Envelope(w, h.briefer.IssueChallenge(r.Context()))
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Verify completes the challenge with the submitted code.
func (h *BriefingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		Error(w, http.StatusBadRequest, "code is required")
		return
	}

	Envelope(w, h.briefer.CompleteChallenge(r.Context(), req.Code))
}

// GetSession reports where the session is in the passwordless flow.
// Tokens are never returned.
func (h *BriefingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Session(r.Context())
	if err != nil {
		slog.Error("Failed to load session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	resp := map[string]interface{}{
		"phone_number": sess.PhoneNumber,
		"state":        sess.State(),
		"prospect_id":  sess.ProspectID,
	}
	if !sess.ServiceStartDate.IsZero() {
		resp["service_start_date"] = sess.ServiceStartDate.Format(domain.DateLayout)
	}
	JSON(w, http.StatusOK, resp)
}

// GetProduction returns the production series.
func (h *BriefingHandler) GetProduction(w http.ResponseWriter, r *http.Request) {
	Envelope(w, h.briefer.ProductionData(r.Context()))
}

// GetBriefing returns the daily narrative. Categories come from repeated
// or comma-separated "category" query parameters.
func (h *BriefingHandler) GetBriefing(w http.ResponseWriter, r *http.Request) {
	var categories []string
	for _, raw := range r.URL.Query()["category"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}
	if len(categories) == 0 {
		categories = h.defaultCategories
	}

	Envelope(w, h.briefer.DailyBriefing(r.Context(), categories))
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store   store.SessionStore
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(sessionStore store.SessionStore) *HealthHandler {
	return &HealthHandler{store: sessionStore, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
