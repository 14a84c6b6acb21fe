package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/config"
	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/elimu-labs/cbe-compass/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size.
const defaultMaxRequestBodySize = 64 << 10 // 64KB

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// RateLimiter implements a per-user rate limiter. The key is userID only, so
// clients cannot bypass throttling by rotating session IDs.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// startEviction runs a background goroutine that periodically removes expired
// keys from the requests map, preventing unbounded memory growth.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for range ticker.C {
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// Handler serves the chat endpoints: SSE-streamed conversation plus history
// retrieval and session clearing.
type Handler struct {
	service     *Service
	repo        store.Repository
	rateLimiter *RateLimiter
	cfg         *config.Config
}

// NewHandler creates a chat handler.
func NewHandler(service *Service, repo store.Repository, cfg *config.Config) *Handler {
	rateLimit := 20
	rateWindow := time.Minute
	if cfg != nil {
		rateLimit = cfg.Chat.RateLimitPerMinute
	}

	return &Handler{
		service:     service,
		repo:        repo,
		rateLimiter: NewRateLimiter(rateLimit, rateWindow),
		cfg:         cfg,
	}
}

// RateLimiter exposes the per-user limiter so other transports can share it.
func (h *Handler) RateLimiter() *RateLimiter {
	return h.rateLimiter
}

// RegisterRoutes registers chat routes (requires authentication).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.HandleChat)
		r.Get("/history", h.HandleHistory)
		r.Delete("/session", h.HandleClearSession)
	})
}

func (h *Handler) historyLimit() int {
	if h.cfg != nil {
		return h.cfg.Chat.HistoryLimit
	}
	return 40
}

// HandleChat handles POST /api/chat requests and streams the assistant reply
// as SSE chunk events.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if !h.rateLimiter.Allow(userID) {
		http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	maxBodySize := int64(defaultMaxRequestBodySize)
	if h.cfg != nil {
		maxBodySize = h.cfg.Chat.MaxRequestBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, `{"error": "request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, `{"error": "message is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	reqID := chiMiddleware.GetReqID(ctx)

	var profile *domain.AssessmentProfile
	if record, err := h.repo.GetAssessment(ctx, userID); err != nil {
		slog.Warn("Failed to load assessment for chat", "error", err, "user_id", userID)
	} else if record != nil {
		profile = &record.Profile
	}

	history, err := h.repo.ListChatMessages(ctx, userID, sessionID, h.historyLimit())
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
		http.Error(w, `{"error": "failed to load chat history"}`, http.StatusInternalServerError)
		return
	}

	if err := h.repo.AppendChatMessage(ctx, domain.NewChatMessage(userID, sessionID, domain.RoleUser, req.Message)); err != nil {
		slog.Error("Failed to persist user message", "error", err, "user_id", userID)
		http.Error(w, `{"error": "failed to store message"}`, http.StatusInternalServerError)
		return
	}

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
		"request_id", reqID,
	)

	// Stream response via SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	var assistantContent strings.Builder
	streamChunks := 0

	for chunk, err := range h.service.Chat(ctx, req.Message, history, profile) {
		if err != nil {
			slog.Error("Chat stream failed", "error", err, "user_id", userID, "request_id", reqID)
			// Partial output is discarded: the transcript records the apology.
			h.finishAssistantMessage(userID, sessionID, "")
			if writeErr := writeSSE(w, "error", `{"error": "guidance is unavailable right now"}`); writeErr != nil {
				slog.Warn("failed to write SSE error event", "error", writeErr)
				return
			}
			flusher.Flush()
			return
		}

		if chunk == "" {
			continue
		}
		streamChunks++
		assistantContent.WriteString(chunk)

		data, err := json.Marshal(map[string]string{"content": chunk})
		if err != nil {
			slog.Warn("failed to marshal chat chunk", "error", err)
			continue
		}
		if err := writeSSE(w, "chunk", string(data)); err != nil {
			slog.Warn("failed to write SSE chunk event", "error", err)
			h.finishAssistantMessage(userID, sessionID, assistantContent.String())
			return
		}
		flusher.Flush()
	}

	content := h.finishAssistantMessage(userID, sessionID, assistantContent.String())

	done, err := json.Marshal(map[string]any{"content": content, "chunks": streamChunks})
	if err != nil {
		slog.Warn("failed to marshal done event", "error", err)
		return
	}
	if err := writeSSE(w, "done", string(done)); err != nil {
		slog.Warn("failed to write SSE done event", "error", err)
		return
	}
	flusher.Flush()
}

// finishAssistantMessage persists the assistant's reply. Empty content is
// stored as the fixed apology so the transcript never has a user message
// without an answer; callers pass empty content on stream failure. Returns the
// stored content.
func (h *Handler) finishAssistantMessage(userID, sessionID, content string) string {
	if content == "" {
		content = apologyMessage
	}
	msg := domain.NewChatMessage(userID, sessionID, domain.RoleAssistant, content)
	if err := h.repo.AppendChatMessage(context.Background(), msg); err != nil {
		slog.Error("Failed to persist assistant message", "error", err, "user_id", userID)
	}
	return content
}

// HandleHistory handles GET /api/chat/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	messages, err := h.repo.ListChatMessages(r.Context(), userID, sessionID, h.historyLimit())
	if err != nil {
		slog.Error("Failed to list chat history", "error", err, "user_id", userID)
		http.Error(w, `{"error": "failed to load chat history"}`, http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"messages": messages}); err != nil {
		slog.Warn("failed to encode chat history", "error", err)
	}
}

// HandleClearSession handles DELETE /api/chat/session.
func (h *Handler) HandleClearSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	deleted, err := h.repo.DeleteChatSession(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to clear chat session", "error", err, "user_id", userID)
		http.Error(w, `{"error": "failed to clear session"}`, http.StatusInternalServerError)
		return
	}

	slog.Info("Chat session cleared", "user_id", userID, "session_id", sessionID, "deleted", deleted)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"deleted": %d}`, deleted)
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
