package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		grade_level INTEGER,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role, last_seen_at);

	CREATE TABLE IF NOT EXISTS assessments (
		user_id TEXT PRIMARY KEY,
		profile_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recommendation_sets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		recommendations_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recommendation_sets_user ON recommendation_sets(user_id, created_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(user_id, session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const userColumns = `user_id, display_name, role, grade_level, last_seen_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var gradeLevel sql.NullInt64
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.DisplayName, &user.Role,
		&gradeLevel, &lastSeen, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.GradeLevel = int(gradeLevel.Int64)
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, display_name, role, grade_level, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		role = excluded.role,
		grade_level = excluded.grade_level,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	var gradeLevel interface{}
	if user.GradeLevel != 0 {
		gradeLevel = user.GradeLevel
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.DisplayName, string(user.Role), gradeLevel,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateUserProfile sets display name, role, and grade level.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, userID, displayName string, role domain.Role, gradeLevel int) error {
	query := `UPDATE users SET display_name = ?, role = ?, grade_level = ?, updated_at = ? WHERE user_id = ?`

	var grade interface{}
	if gradeLevel != 0 {
		grade = gradeLevel
	}

	result, err := s.db.ExecContext(ctx, query, displayName, string(role), grade, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateUserProfile affected 0 rows", "user_id", userID)
	}

	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// ListUsersByRole returns all users with the given role, most recently seen first.
func (s *SQLiteStore) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY last_seen_at DESC`

	rows, err := s.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// CountUsersByRole returns the number of users per role.
func (s *SQLiteStore) CountUsersByRole(ctx context.Context) (map[domain.Role]int64, error) {
	query := `SELECT role, COUNT(*) FROM users GROUP BY role`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close role count rows", "error", closeErr)
		}
	}()

	counts := make(map[domain.Role]int64)
	for rows.Next() {
		var role string
		var count int64
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("scan role count row: %w", err)
		}
		counts[domain.Role(role)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role counts: %w", err)
	}

	return counts, nil
}

// GetAssessment retrieves the stored assessment for a user.
func (s *SQLiteStore) GetAssessment(ctx context.Context, userID string) (*domain.AssessmentRecord, error) {
	query := `SELECT user_id, profile_json, created_at, updated_at FROM assessments WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var record domain.AssessmentRecord
	var profileJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&record.UserID, &profileJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan assessment row: %w", err)
	}

	if err := json.Unmarshal([]byte(profileJSON), &record.Profile); err != nil {
		return nil, fmt.Errorf("decode assessment profile: %w", err)
	}

	record.CreatedAt = time.Unix(createdAt, 0)
	record.UpdatedAt = time.Unix(updatedAt, 0)

	return &record, nil
}

// UpsertAssessment stores or replaces a user's assessment.
func (s *SQLiteStore) UpsertAssessment(ctx context.Context, record *domain.AssessmentRecord) error {
	profileJSON, err := json.Marshal(record.Profile)
	if err != nil {
		return fmt.Errorf("encode assessment profile: %w", err)
	}

	query := `
	INSERT INTO assessments (user_id, profile_json, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		profile_json = excluded.profile_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		record.UserID, string(profileJSON),
		record.CreatedAt.Unix(), record.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

// ListAssessments returns all stored assessments, newest first.
func (s *SQLiteStore) ListAssessments(ctx context.Context) ([]*domain.AssessmentRecord, error) {
	query := `SELECT user_id, profile_json, created_at, updated_at FROM assessments ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close assessment rows", "error", closeErr)
		}
	}()

	var records []*domain.AssessmentRecord
	for rows.Next() {
		var record domain.AssessmentRecord
		var profileJSON string
		var createdAt, updatedAt int64

		if err := rows.Scan(&record.UserID, &profileJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment row: %w", err)
		}
		if err := json.Unmarshal([]byte(profileJSON), &record.Profile); err != nil {
			return nil, fmt.Errorf("decode assessment profile: %w", err)
		}
		record.CreatedAt = time.Unix(createdAt, 0)
		record.UpdatedAt = time.Unix(updatedAt, 0)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}

	return records, nil
}

// SaveRecommendationSet stores a freshly generated recommendation batch.
func (s *SQLiteStore) SaveRecommendationSet(ctx context.Context, set *domain.RecommendationSet) error {
	recsJSON, err := json.Marshal(set.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	query := `
	INSERT INTO recommendation_sets (id, user_id, source, recommendations_json, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		set.ID, set.UserID, string(set.Source), string(recsJSON), set.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save recommendation set: %w", err)
	}
	return nil
}

// GetLatestRecommendationSet returns the newest stored batch for a user.
func (s *SQLiteStore) GetLatestRecommendationSet(ctx context.Context, userID string) (*domain.RecommendationSet, error) {
	query := `
	SELECT id, user_id, source, recommendations_json, created_at
	FROM recommendation_sets WHERE user_id = ?
	ORDER BY created_at DESC, id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID)

	var set domain.RecommendationSet
	var recsJSON string
	var createdAt int64

	err := row.Scan(&set.ID, &set.UserID, &set.Source, &recsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan recommendation set row: %w", err)
	}

	if err := json.Unmarshal([]byte(recsJSON), &set.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	set.CreatedAt = time.Unix(createdAt, 0)

	return &set, nil
}

// CountRecommendationSetsBySource returns stored batch counts per source.
func (s *SQLiteStore) CountRecommendationSetsBySource(ctx context.Context) (map[domain.RecommendationSource]int64, error) {
	query := `SELECT source, COUNT(*) FROM recommendation_sets GROUP BY source`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count recommendation sets: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close source count rows", "error", closeErr)
		}
	}()

	counts := make(map[domain.RecommendationSource]int64)
	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan source count row: %w", err)
		}
		counts[domain.RecommendationSource(source)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}

	return counts, nil
}

// AppendChatMessage stores one finalized chat message. Timestamps are kept at
// nanosecond precision so messages written within the same second keep their
// insertion order.
func (s *SQLiteStore) AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	query := `
	INSERT INTO chat_messages (id, user_id, session_id, role, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the most recent messages of a session in
// chronological order, capped at limit (0 means no cap).
func (s *SQLiteStore) ListChatMessages(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatMessage, error) {
	// Select the newest N rows, then re-order them oldest-first.
	query := `
	SELECT id, user_id, session_id, role, content, created_at FROM (
		SELECT id, user_id, session_id, role, content, created_at
		FROM chat_messages
		WHERE user_id = ? AND session_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{userID, sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat message rows", "error", closeErr)
		}
	}()

	var messages []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message row: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	return messages, nil
}

// DeleteChatSession removes all messages of one session.
func (s *SQLiteStore) DeleteChatSession(ctx context.Context, userID, sessionID string) (int64, error) {
	query := `DELETE FROM chat_messages WHERE user_id = ? AND session_id = ?`
	result, err := s.db.ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete chat session: %w", err)
	}
	return result.RowsAffected()
}

// CountChatMessages returns the total number of stored chat messages.
func (s *SQLiteStore) CountChatMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return count, nil
}

// DeleteChatMessagesBefore removes messages older than the cutoff.
func (s *SQLiteStore) DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM chat_messages WHERE created_at < ?`
	result, err := s.db.ExecContext(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete old chat messages: %w", err)
	}
	return result.RowsAffected()
}

// DeleteStaleRecommendationSets removes batches older than the cutoff,
// always keeping each user's most recent one.
func (s *SQLiteStore) DeleteStaleRecommendationSets(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
	DELETE FROM recommendation_sets
	WHERE created_at < ?
	AND id NOT IN (
		SELECT id FROM recommendation_sets AS latest
		WHERE latest.user_id = recommendation_sets.user_id
		ORDER BY latest.created_at DESC, latest.id DESC LIMIT 1
	)`
	result, err := s.db.ExecContext(ctx, query, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete stale recommendation sets: %w", err)
	}
	return result.RowsAffected()
}
