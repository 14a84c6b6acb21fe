package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/elimu-labs/cbe-compass/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// DashboardHandler serves the role-shaped dashboard endpoint.
type DashboardHandler struct {
	*Handler
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(base *Handler) *DashboardHandler {
	return &DashboardHandler{Handler: base}
}

// RegisterRoutes registers dashboard routes. The student roster is gated to
// staff roles; the dashboard itself shapes its payload per role.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/dashboard", h.GetDashboard)
	r.With(middleware.RequireRole(domain.RoleTeacher, domain.RoleAdmin)).
		Get("/api/students", h.ListStudents)
}

// GetDashboard returns dashboard data shaped by the caller's role: students
// see their own progress, staff see aggregates across students.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
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

	if user.IsStaff() {
		h.staffDashboard(w, r, user)
		return
	}
	h.studentDashboard(w, r, user)
}

// ListStudents returns every student with their assessment status. Staff only.
func (h *DashboardHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	students, err := h.repo.ListUsersByRole(ctx, domain.RoleStudent)
	if err != nil {
		slog.Error("Failed to list students", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	assessed := make(map[string]bool)
	assessments, err := h.repo.ListAssessments(ctx)
	if err != nil {
		slog.Error("Failed to list assessments", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	for _, a := range assessments {
		assessed[a.UserID] = true
	}

	type studentEntry struct {
		UserID             string    `json:"user_id"`
		DisplayName        string    `json:"display_name"`
		GradeLevel         int       `json:"grade_level"`
		LastSeenAt         time.Time `json:"last_seen_at"`
		AssessmentComplete bool      `json:"assessment_complete"`
	}
	entries := make([]studentEntry, 0, len(students))
	for _, s := range students {
		entries = append(entries, studentEntry{
			UserID:             s.UserID,
			DisplayName:        s.DisplayName,
			GradeLevel:         s.GradeLevel,
			LastSeenAt:         s.LastSeenAt,
			AssessmentComplete: assessed[s.UserID],
		})
	}

	JSON(w, http.StatusOK, map[string]interface{}{"students": entries})
}

func (h *DashboardHandler) studentDashboard(w http.ResponseWriter, r *http.Request, user *domain.User) {
	ctx := r.Context()

	assessment, err := h.repo.GetAssessment(ctx, user.UserID)
	if err != nil {
		slog.Error("Failed to load assessment for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	recommendations, err := h.repo.GetLatestRecommendationSet(ctx, user.UserID)
	if err != nil {
		slog.Error("Failed to load recommendations for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"role":                user.Role,
		"display_name":        user.DisplayName,
		"grade_level":         user.GradeLevel,
		"assessment_complete": assessment != nil,
		"assessment":          assessment,
		"recommendations":     recommendations,
	})
}

func (h *DashboardHandler) staffDashboard(w http.ResponseWriter, r *http.Request, user *domain.User) {
	ctx := r.Context()

	roleCounts, err := h.repo.CountUsersByRole(ctx)
	if err != nil {
		slog.Error("Failed to count users for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	sourceCounts, err := h.repo.CountRecommendationSetsBySource(ctx)
	if err != nil {
		slog.Error("Failed to count recommendation sets for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	messageCount, err := h.repo.CountChatMessages(ctx)
	if err != nil {
		slog.Error("Failed to count chat messages for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	assessments, err := h.repo.ListAssessments(ctx)
	if err != nil {
		slog.Error("Failed to list assessments for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	students, err := h.repo.ListUsersByRole(ctx, domain.RoleStudent)
	if err != nil {
		slog.Error("Failed to list students for dashboard", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	if students == nil {
		students = []*domain.User{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"role":                  user.Role,
		"display_name":          user.DisplayName,
		"students":              students,
		"student_count":         roleCounts[domain.RoleStudent],
		"assessments_completed": len(assessments),
		"chat_message_count":    messageCount,
		"recommendation_counts": map[string]int64{
			"model":    sourceCounts[domain.SourceModel],
			"fallback": sourceCounts[domain.SourceFallback],
		},
	})
}
