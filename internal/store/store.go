// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// Repository defines the interface for persisting users, assessments,
// recommendations, and chat history.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateUserProfile sets display name, role, and grade level.
	UpdateUserProfile(ctx context.Context, userID, displayName string, role domain.Role, gradeLevel int) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// ListUsersByRole returns all users with the given role, most recently
	// seen first.
	ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)

	// CountUsersByRole returns the number of users per role.
	CountUsersByRole(ctx context.Context) (map[domain.Role]int64, error)

	// GetAssessment retrieves the stored assessment for a user, or (nil, nil).
	GetAssessment(ctx context.Context, userID string) (*domain.AssessmentRecord, error)

	// UpsertAssessment stores or replaces a user's assessment.
	UpsertAssessment(ctx context.Context, record *domain.AssessmentRecord) error

	// ListAssessments returns all stored assessments, newest first.
	ListAssessments(ctx context.Context) ([]*domain.AssessmentRecord, error)

	// SaveRecommendationSet stores a freshly generated recommendation batch.
	SaveRecommendationSet(ctx context.Context, set *domain.RecommendationSet) error

	// GetLatestRecommendationSet returns the newest stored batch for a user,
	// or (nil, nil).
	GetLatestRecommendationSet(ctx context.Context, userID string) (*domain.RecommendationSet, error)

	// CountRecommendationSetsBySource returns stored batch counts per source.
	CountRecommendationSetsBySource(ctx context.Context) (map[domain.RecommendationSource]int64, error)

	// AppendChatMessage stores one finalized chat message.
	AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error

	// ListChatMessages returns the most recent messages of a session in
	// chronological order, capped at limit (0 means no cap).
	ListChatMessages(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatMessage, error)

	// DeleteChatSession removes all messages of one session.
	DeleteChatSession(ctx context.Context, userID, sessionID string) (int64, error)

	// CountChatMessages returns the total number of stored chat messages.
	CountChatMessages(ctx context.Context) (int64, error)

	// DeleteChatMessagesBefore removes messages older than the cutoff.
	DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteStaleRecommendationSets removes batches older than the cutoff,
	// always keeping each user's most recent one.
	DeleteStaleRecommendationSets(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// IsBusyError reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
