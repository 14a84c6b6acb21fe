package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/config"
	"github.com/elimu-labs/cbe-compass/internal/deepseek"
	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/elimu-labs/cbe-compass/internal/store"
)

// streamingCompleter yields a fixed set of chunks; if err is set it is
// surfaced after the chunks, so an empty chunk list fails up front and a
// non-empty one fails mid-stream.
type streamingCompleter struct {
	chunks []string
	err    error
}

func (s streamingCompleter) Complete(ctx context.Context, messages []deepseek.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.Join(s.chunks, ""), nil
}

func (s streamingCompleter) Stream(ctx context.Context, messages []deepseek.Message) (iter.Seq2[string, error], error) {
	if s.err != nil && len(s.chunks) == 0 {
		return nil, s.err
	}
	return func(yield func(string, error) bool) {
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}, nil
}

func newChatHandler(t *testing.T, completer Completer) (*Handler, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "compass.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	cfg := &config.Config{
		Chat: config.ChatConfig{
			HistoryLimit:       40,
			MaxRequestBody:     64 * 1024,
			RateLimitPerMinute: 100,
			SSEKeepalive:       15 * time.Second,
		},
	}
	return NewHandler(NewService(completer), repo, cfg), repo
}

func chatRequestAs(t *testing.T, body, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	ctx := identity.WithIdentity(req.Context(), userID, domain.RoleStudent, "default")
	return req.WithContext(ctx)
}

// parseSSE splits an SSE body into (event, data) pairs.
func parseSSE(t *testing.T, body string) [][2]string {
	t.Helper()
	var events [][2]string
	for _, block := range strings.Split(body, "\n\n") {
		var event, data string
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				event = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = v
			}
		}
		if event != "" {
			events = append(events, [2]string{event, data})
		}
	}
	return events
}

func TestHandleChatStreamsChunks(t *testing.T) {
	h, repo := newChatHandler(t, streamingCompleter{chunks: []string{"Hello", " there"}})

	w := httptest.NewRecorder()
	h.HandleChat(w, chatRequestAs(t, `{"message": "What careers suit me?"}`, "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, w.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 2 chunks + done, got %d events: %v", len(events), events)
	}
	for i, want := range []string{"Hello", " there"} {
		if events[i][0] != "chunk" {
			t.Errorf("event %d = %s, want chunk", i, events[i][0])
		}
		var payload map[string]string
		if err := json.Unmarshal([]byte(events[i][1]), &payload); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
		if payload["content"] != want {
			t.Errorf("chunk %d = %q, want %q", i, payload["content"], want)
		}
	}
	if events[2][0] != "done" {
		t.Errorf("last event = %s, want done", events[2][0])
	}

	// Both sides of the exchange must be persisted.
	msgs, err := repo.ListChatMessages(context.Background(), "u1", "default", 0)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "What careers suit me?" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "Hello there" {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
}

func TestHandleChatStreamFailurePersistsApology(t *testing.T) {
	cases := []struct {
		name      string
		completer streamingCompleter
		events    int
	}{
		{"fails before any chunk", streamingCompleter{err: errors.New("upstream down")}, 1},
		{"fails after partial output", streamingCompleter{chunks: []string{"Partial answer "}, err: errors.New("upstream down")}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, repo := newChatHandler(t, tc.completer)

			w := httptest.NewRecorder()
			h.HandleChat(w, chatRequestAs(t, `{"message": "hello"}`, "u1"))

			events := parseSSE(t, w.Body.String())
			if len(events) != tc.events || events[len(events)-1][0] != "error" {
				t.Fatalf("expected %d events ending in error, got %v", tc.events, events)
			}

			msgs, err := repo.ListChatMessages(context.Background(), "u1", "default", 0)
			if err != nil {
				t.Fatalf("ListChatMessages: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("expected user + apology messages, got %d", len(msgs))
			}
			// Partial output is dropped from the transcript.
			if msgs[1].Content != apologyMessage {
				t.Errorf("assistant message = %q, want apology", msgs[1].Content)
			}
		})
	}
}

func TestHandleChatValidation(t *testing.T) {
	h, _ := newChatHandler(t, streamingCompleter{chunks: []string{"hi"}})

	w := httptest.NewRecorder()
	h.HandleChat(w, chatRequestAs(t, `{"message": "   "}`, "u1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank message status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleChat(w, chatRequestAs(t, `not json`, "u1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": "hi"}`))
	h.HandleChat(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing identity status = %d, want 401", w.Code)
	}
}

func TestHandleChatRateLimit(t *testing.T) {
	h, _ := newChatHandler(t, streamingCompleter{chunks: []string{"hi"}})
	h.rateLimiter = NewRateLimiter(1, time.Minute)

	w := httptest.NewRecorder()
	h.HandleChat(w, chatRequestAs(t, `{"message": "first"}`, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleChat(w, chatRequestAs(t, `{"message": "second"}`, "u1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w.Code)
	}
}

func TestHandleHistoryAndClearSession(t *testing.T) {
	h, repo := newChatHandler(t, streamingCompleter{chunks: []string{"answer"}})

	ctx := context.Background()
	for _, content := range []string{"q1", "q2"} {
		if err := repo.AppendChatMessage(ctx, domain.NewChatMessage("u1", "default", domain.RoleUser, content)); err != nil {
			t.Fatalf("AppendChatMessage: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "u1", domain.RoleStudent, "default"))
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var got struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("history length = %d, want 2", len(got.Messages))
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/chat/session", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "u1", domain.RoleStudent, "default"))
	w = httptest.NewRecorder()
	h.HandleClearSession(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}

	msgs, err := repo.ListChatMessages(ctx, "u1", "default", 0)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(msgs))
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("u1") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("u2") {
		t.Error("other users are unaffected")
	}
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("u1") {
		t.Error("request after window should pass")
	}
}
