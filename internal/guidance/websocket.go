package guidance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/elimu-labs/cbe-compass/internal/config"
	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/elimu-labs/cbe-compass/internal/store"
)

// WebSocketHandler handles WebSocket-based live chat sessions.
type WebSocketHandler struct {
	service       *Service
	repo          store.Repository
	rateLimiter   *RateLimiter
	cfg           *config.Config
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler. The rate limiter
// is shared with the HTTP chat handler so the per-user budget covers both
// transports.
func NewWebSocketHandler(service *Service, repo store.Repository, rateLimiter *RateLimiter, cfg *config.Config, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		service:       service,
		repo:          repo,
		rateLimiter:   rateLimiter,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents the WebSocket message structure in both directions.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Serialize writes: the keepalive ticker and the chat stream both write.
	var writeMu sync.Mutex
	writeJSON := func(v wsMessage) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.Write(ctx, websocket.MessageText, data)
	}

	keepalive := 15 * time.Second
	if h.cfg != nil {
		keepalive = h.cfg.Chat.SSEKeepalive
	}
	go func() {
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.Ping(ctx); err != nil {
					slog.Debug("WebSocket ping failed", "error", err, "user_id", userID)
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if err := writeJSON(wsMessage{Type: "error", Error: "invalid message"}); err != nil {
				slog.Debug("Failed to send invalid message error", "error", err)
			}
			continue
		}

		switch msg.Type {
		case "chat":
			h.handleChatMessage(ctx, writeJSON, userID, sessionID, msg.Content)
		case "ping":
			if err := writeJSON(wsMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			if err := writeJSON(wsMessage{Type: "error", Error: "unknown message type"}); err != nil {
				slog.Debug("Failed to send unknown type error", "error", err)
			}
		}

		// Update last seen asynchronously with timeout.
		go func() {
			updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
				slog.Warn("Failed to update last seen", "error", err)
			}
		}()
	}
}

func (h *WebSocketHandler) handleChatMessage(ctx context.Context, writeJSON func(wsMessage) error, userID, sessionID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		if err := writeJSON(wsMessage{Type: "error", Error: "message is required"}); err != nil {
			slog.Debug("Failed to send empty message error", "error", err)
		}
		return
	}

	if !h.rateLimiter.Allow(userID) {
		if err := writeJSON(wsMessage{Type: "error", Error: "rate limit exceeded"}); err != nil {
			slog.Debug("Failed to send rate limit error", "error", err)
		}
		return
	}

	var profile *domain.AssessmentProfile
	if record, err := h.repo.GetAssessment(ctx, userID); err != nil {
		slog.Warn("Failed to load assessment for chat", "error", err, "user_id", userID)
	} else if record != nil {
		profile = &record.Profile
	}

	historyLimit := 40
	if h.cfg != nil {
		historyLimit = h.cfg.Chat.HistoryLimit
	}
	history, err := h.repo.ListChatMessages(ctx, userID, sessionID, historyLimit)
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
		if err := writeJSON(wsMessage{Type: "error", Error: "failed to load chat history"}); err != nil {
			slog.Debug("Failed to send history error", "error", err)
		}
		return
	}

	if err := h.repo.AppendChatMessage(ctx, domain.NewChatMessage(userID, sessionID, domain.RoleUser, text)); err != nil {
		slog.Error("Failed to persist user message", "error", err, "user_id", userID)
		if err := writeJSON(wsMessage{Type: "error", Error: "failed to store message"}); err != nil {
			slog.Debug("Failed to send store error", "error", err)
		}
		return
	}

	var assistantContent strings.Builder
	streamErr := h.service.StreamMessage(ctx, text, history, func(chunk string) {
		if chunk == "" {
			return
		}
		assistantContent.WriteString(chunk)
		if err := writeJSON(wsMessage{Type: "chunk", Content: chunk}); err != nil {
			slog.Debug("Failed to send chat chunk", "error", err, "user_id", userID)
		}
	}, profile)

	// On stream failure the partial output is discarded and the transcript
	// records the apology instead.
	content := assistantContent.String()
	if streamErr != nil || content == "" {
		content = apologyMessage
	}
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.repo.AppendChatMessage(persistCtx, domain.NewChatMessage(userID, sessionID, domain.RoleAssistant, content)); err != nil {
		slog.Error("Failed to persist assistant message", "error", err, "user_id", userID)
	}

	if streamErr != nil {
		slog.Error("Chat stream failed", "error", streamErr, "user_id", userID)
		if err := writeJSON(wsMessage{Type: "error", Error: "guidance is unavailable right now"}); err != nil {
			slog.Debug("Failed to send stream error", "error", err)
		}
		return
	}

	if err := writeJSON(wsMessage{Type: "done", Content: content}); err != nil {
		slog.Debug("Failed to send done message", "error", err, "user_id", userID)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
