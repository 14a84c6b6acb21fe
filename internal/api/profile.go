package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/go-chi/chi/v5"
)

// minGradeLevel and maxGradeLevel bound the CBE grade range served by the app.
const (
	minGradeLevel = 7
	maxGradeLevel = 12
)

// ProfileHandler handles user profile and assessment endpoints.
type ProfileHandler struct {
	*Handler
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(base *Handler) *ProfileHandler {
	return &ProfileHandler{Handler: base}
}

// RegisterRoutes registers profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Put("/profile", h.UpdateProfile)
		r.Get("/assessment", h.GetAssessment)
		r.Post("/assessment", h.SubmitAssessment)
	})
}

// GetMe returns the current user's information.
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
		"role":         user.Role,
		"grade_level":  user.GradeLevel,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *ProfileHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.aiEnabled,
	})
}

// profileRequest is the body of PUT /api/profile.
type profileRequest struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	GradeLevel  int    `json:"grade_level"`
}

// UpdateProfile sets the user's display name, role, and grade level.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		Error(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if len(req.DisplayName) > 64 {
		Error(w, http.StatusBadRequest, "display_name too long")
		return
	}

	role := domain.Role(req.Role)
	if req.Role == "" {
		role = identity.RoleFromContext(r.Context())
	} else if !domain.ValidRole(role) {
		Error(w, http.StatusBadRequest, "invalid role")
		return
	}

	// Students cannot promote themselves to staff roles.
	current := identity.RoleFromContext(r.Context())
	if current == domain.RoleStudent && role != domain.RoleStudent {
		Error(w, http.StatusForbidden, "cannot change role")
		return
	}

	if req.GradeLevel != 0 && (req.GradeLevel < minGradeLevel || req.GradeLevel > maxGradeLevel) {
		Error(w, http.StatusBadRequest, "grade_level out of range")
		return
	}

	if err := h.repo.UpdateUserProfile(r.Context(), userID, req.DisplayName, role, req.GradeLevel); err != nil {
		slog.Error("Failed to update profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	slog.Info("Profile updated", "user_id", userID, "role", role, "grade_level", req.GradeLevel)
	JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GetAssessment returns the user's stored assessment, if any.
func (h *ProfileHandler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	record, err := h.repo.GetAssessment(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load assessment", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}
	if record == nil {
		Error(w, http.StatusNotFound, "no assessment on file")
		return
	}

	JSON(w, http.StatusOK, record)
}

// SubmitAssessment stores or replaces the user's assessment profile.
func (h *ProfileHandler) SubmitAssessment(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var profile domain.AssessmentProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if profile.IsEmpty() {
		Error(w, http.StatusBadRequest, "assessment cannot be empty")
		return
	}
	if profile.GradeLevel != 0 && (profile.GradeLevel < minGradeLevel || profile.GradeLevel > maxGradeLevel) {
		Error(w, http.StatusBadRequest, "gradeLevel out of range")
		return
	}

	now := time.Now()
	record := &domain.AssessmentRecord{
		UserID:    userID,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := h.repo.GetAssessment(r.Context(), userID); err == nil && existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	if err := h.repo.UpsertAssessment(r.Context(), record); err != nil {
		slog.Error("Failed to store assessment", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to store assessment")
		return
	}

	slog.Info("Assessment submitted", "user_id", userID, "grade_level", profile.GradeLevel)
	JSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
