package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RecommendationHandler handles career recommendation endpoints.
type RecommendationHandler struct {
	*Handler
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(base *Handler) *RecommendationHandler {
	return &RecommendationHandler{Handler: base}
}

// RegisterRoutes registers recommendation routes.
func (h *RecommendationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/recommendations", func(r chi.Router) {
		r.Get("/", h.GetLatest)
		r.Post("/", h.Recompute)
	})
}

// GetLatest returns the user's most recent recommendation set, computing one
// first if nothing is stored yet.
func (h *RecommendationHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	set, err := h.repo.GetLatestRecommendationSet(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load recommendations", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load recommendations")
		return
	}
	if set == nil {
		set, err = h.compute(r)
		if err != nil {
			Error(w, http.StatusInternalServerError, "failed to compute recommendations")
			return
		}
	}

	JSON(w, http.StatusOK, set)
}

// Recompute generates a fresh recommendation set from the stored assessment
// and persists it.
func (h *RecommendationHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	set, err := h.compute(r)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to compute recommendations")
		return
	}

	JSON(w, http.StatusOK, set)
}

func (h *RecommendationHandler) compute(r *http.Request) (*domain.RecommendationSet, error) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)

	var profile domain.AssessmentProfile
	if record, err := h.repo.GetAssessment(ctx, userID); err != nil {
		slog.Warn("Failed to load assessment for recommendations", "error", err, "user_id", userID)
	} else if record != nil {
		profile = record.Profile
	}

	recs, fromModel := h.guidance.Recommend(ctx, profile)

	source := domain.SourceFallback
	if fromModel {
		source = domain.SourceModel
	}

	set := &domain.RecommendationSet{
		ID:              uuid.NewString(),
		UserID:          userID,
		Source:          source,
		Recommendations: recs,
		CreatedAt:       time.Now(),
	}
	if err := h.repo.SaveRecommendationSet(ctx, set); err != nil {
		slog.Error("Failed to store recommendation set", "error", err, "user_id", userID)
		return nil, err
	}

	slog.Info("Recommendations computed",
		"user_id", userID,
		"source", source,
		"count", len(recs),
	)
	return set, nil
}
