package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openquiz/quizmaster-api/internal/api/shared"
	"github.com/openquiz/quizmaster-api/internal/domain"
	"github.com/openquiz/quizmaster-api/internal/report"
)

// defaultRankingLimit bounds the ranking response when the client does
// not ask for a specific size.
const defaultRankingLimit = 10

// AttemptSource lists the per-attempt rows the ranking is computed from.
type AttemptSource interface {
	ListQuizAttempts(ctx context.Context) ([]domain.QuizAttempt, error)
}

// RankingCache is the read-through cache for the computed ranking. A nil
// cache means every request recomputes.
type RankingCache interface {
	Get(ctx context.Context) ([]domain.RankedPerformanceEntry, bool, error)
	Set(ctx context.Context, entries []domain.RankedPerformanceEntry) error
}

// RankingResponse wraps the ranked entries.
type RankingResponse struct {
	Ranking []domain.RankedPerformanceEntry `json:"ranking"`
}

// RankingHandler serves the user performance ranking.
type RankingHandler struct {
	attempts AttemptSource
	cache    RankingCache
	logger   *slog.Logger
}

// NewRankingHandler creates a ranking handler. cache may be nil to
// disable caching. If logger is nil, slog.Default() is used.
func NewRankingHandler(attempts AttemptSource, cache RankingCache, logger *slog.Logger) *RankingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingHandler{
		attempts: attempts,
		cache:    cache,
		logger:   logger.With(slog.String("component", "ranking_handler")),
	}
}

// GetRanking handles GET /ranking?limit=N. The full ranking is cached;
// the limit is applied per request so differently sized reads share one
// snapshot. Cache failures degrade to a recompute.
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.With(slog.String("trace_id", shared.GetTraceID(ctx)))

	limit := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.ranking(ctx, log)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to compute ranking", err)
		return
	}
	if limit < len(entries) {
		entries = entries[:limit]
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RankingResponse{Ranking: entries})
}

func (h *RankingHandler) ranking(ctx context.Context, log *slog.Logger) ([]domain.RankedPerformanceEntry, error) {
	if h.cache != nil {
		cached, ok, err := h.cache.Get(ctx)
		if err != nil {
			log.Warn("ranking cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return cached, nil
		}
	}

	attempts, err := h.attempts.ListQuizAttempts(ctx)
	if err != nil {
		return nil, err
	}
	entries := report.Rank(attempts, 0)

	if h.cache != nil {
		if err := h.cache.Set(ctx, entries); err != nil {
			log.Warn("ranking cache write failed", slog.String("error", err.Error()))
		}
	}
	return entries, nil
}
