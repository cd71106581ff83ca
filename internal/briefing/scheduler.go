package briefing

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/sunbrief/internal/domain"
)

// BriefingCallback receives each scheduled briefing result.
type BriefingCallback func(result domain.Result)

// StartScheduler runs a background goroutine that produces a briefing every
// interval until ctx is done. A non-positive interval disables it.
func StartScheduler(ctx context.Context, p *Pipeline, interval time.Duration, categories []string, onBriefing BriefingCallback) {
	if interval <= 0 {
		slog.Info("Briefing scheduler disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Briefing scheduler started", "interval", interval, "categories", categories)

		for {
			select {
			case <-ticker.C:
				runScheduledBriefing(ctx, p, categories, onBriefing)
			case <-ctx.Done():
				slog.Info("Briefing scheduler shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func runScheduledBriefing(ctx context.Context, p *Pipeline, categories []string, onBriefing BriefingCallback) {
	result := scheduledBriefing(ctx, p, categories)

	switch {
	case result.OK():
		slog.Info("Scheduled briefing", "briefing", result.Data)
	case result.Kind == domain.KindAuthRequired:
		slog.Warn("Scheduled briefing needs a verification code", "hint", result.Data)
	default:
		slog.Error("Scheduled briefing failed", "kind", result.Kind, "message", result.Message)
	}

	if onBriefing != nil {
		onBriefing(result)
	}
}

// scheduledBriefing briefs only an authenticated session and never issues
// a challenge.
func scheduledBriefing(ctx context.Context, p *Pipeline, categories []string) domain.Result {
	_, ok, err := p.sessions.Credentials(ctx)
	if err != nil {
		return domain.Failure(domain.KindUnknown, err.Error(), nil)
	}
	if !ok {
		return authRequired()
	}
	return p.DailyBriefing(ctx, categories)
}
