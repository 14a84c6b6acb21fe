package guidance

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/elimu-labs/cbe-compass/internal/deepseek"
	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// fakeCompleter scripts the model client for service tests.
type fakeCompleter struct {
	completeContent string
	completeErr     error
	streamChunks    []string
	streamErr       error
	streamOpenErr   error
	lastMessages    []deepseek.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []deepseek.Message) (string, error) {
	f.lastMessages = messages
	return f.completeContent, f.completeErr
}

func (f *fakeCompleter) Stream(_ context.Context, messages []deepseek.Message) (iter.Seq2[string, error], error) {
	f.lastMessages = messages
	if f.streamOpenErr != nil {
		return nil, f.streamOpenErr
	}
	return func(yield func(string, error) bool) {
		for _, chunk := range f.streamChunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}, nil
}

func TestStreamMessageDeliversChunksInOrder(t *testing.T) {
	fake := &fakeCompleter{streamChunks: []string{"Ka", "ri", "bu"}}
	svc := NewService(fake)

	var got []string
	err := svc.StreamMessage(context.Background(), "hello", nil, func(chunk string) {
		got = append(got, chunk)
	}, nil)
	if err != nil {
		t.Fatalf("StreamMessage failed: %v", err)
	}
	if strings.Join(got, "") != "Karibu" {
		t.Errorf("Expected chunks to join to 'Karibu', got %q", strings.Join(got, ""))
	}
	if len(got) != 3 {
		t.Errorf("Expected one onChunk call per delta, got %d", len(got))
	}
}

func TestStreamMessageKeepsDeliveredChunksOnError(t *testing.T) {
	fake := &fakeCompleter{
		streamChunks: []string{"partial "},
		streamErr:    errors.New("connection reset"),
	}
	svc := NewService(fake)

	var got []string
	err := svc.StreamMessage(context.Background(), "hello", nil, func(chunk string) {
		got = append(got, chunk)
	}, nil)
	if err == nil {
		t.Fatal("Expected the stream error to propagate")
	}
	if len(got) != 1 || got[0] != "partial " {
		t.Errorf("Expected already-delivered chunks to stand, got %v", got)
	}
}

func TestStreamMessagePropagatesOpenError(t *testing.T) {
	fake := &fakeCompleter{streamOpenErr: deepseek.ErrNotConfigured}
	svc := NewService(fake)

	called := false
	err := svc.StreamMessage(context.Background(), "hello", nil, func(string) { called = true }, nil)
	if !errors.Is(err, deepseek.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
	if called {
		t.Error("Expected no onChunk calls when the call fails to open")
	}
}

func TestChatBuildsSystemHistoryUser(t *testing.T) {
	fake := &fakeCompleter{streamChunks: []string{"ok"}}
	svc := NewService(fake)

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
		{Role: domain.RoleSystem, Content: "stale system prompt"},
	}
	profile := &domain.AssessmentProfile{GradeLevel: 10}

	for range svc.Chat(context.Background(), "new question", history, profile) {
		break
	}

	msgs := fake.lastMessages
	if len(msgs) != 4 {
		t.Fatalf("Expected 4 messages (system + 2 history + user), got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "Grade Level: 10") {
		t.Errorf("Expected personalized system prompt first, got role=%s", msgs[0].Role)
	}
	if msgs[1].Content != "earlier question" || msgs[2].Content != "earlier answer" {
		t.Error("Expected history preserved in order")
	}
	if msgs[3].Role != "user" || msgs[3].Content != "new question" {
		t.Errorf("Expected the new user message last, got %+v", msgs[3])
	}
}

func TestSendMessageApologyOnEmptyContent(t *testing.T) {
	fake := &fakeCompleter{completeContent: ""}
	svc := NewService(fake)

	content, err := svc.SendMessage(context.Background(), "hi", nil, nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if content != apologyMessage {
		t.Errorf("Expected the fixed apology message, got %q", content)
	}
}

func TestRecommendParsesModelArray(t *testing.T) {
	fake := &fakeCompleter{
		completeContent: `Sure! [{"pathway":"STEM","track":"Applied Sciences","matchPercentage":120,"reasoning":"x"}] done`,
	}
	svc := NewService(fake)

	recs, fromModel := svc.Recommend(context.Background(), domain.AssessmentProfile{})
	if !fromModel {
		t.Error("Expected model-sourced recommendations")
	}
	if len(recs) != 1 || recs[0].Pathway != "STEM" {
		t.Fatalf("Unexpected recommendations: %+v", recs)
	}
	if recs[0].MatchPercentage != 100 {
		t.Errorf("Expected clamped matchPercentage 100, got %d", recs[0].MatchPercentage)
	}
}

func TestRecommendFallsBackOnUpstreamFailure(t *testing.T) {
	fake := &fakeCompleter{completeErr: &deepseek.UpstreamError{StatusCode: 503, Message: "down"}}
	svc := NewService(fake)

	profile := domain.AssessmentProfile{FavoriteSubjects: []string{"Mathematics", "Physics"}}
	recs, fromModel := svc.Recommend(context.Background(), profile)
	if fromModel {
		t.Error("Expected fallback-sourced recommendations")
	}
	if len(recs) != 1 {
		t.Fatalf("Expected exactly 1 fallback recommendation, got %d", len(recs))
	}
	if recs[0].Pathway != "STEM" || recs[0].Track != "Pure Sciences" || recs[0].MatchPercentage != 75 {
		t.Errorf("Expected STEM / Pure Sciences at 75, got %+v", recs[0])
	}
}

func TestRecommendFallsBackOnUnparseableResponse(t *testing.T) {
	fake := &fakeCompleter{completeContent: "I think you should follow your heart."}
	svc := NewService(fake)

	recs, fromModel := svc.Recommend(context.Background(), domain.AssessmentProfile{})
	if fromModel {
		t.Error("Expected fallback-sourced recommendations")
	}
	if len(recs) == 0 {
		t.Fatal("Expected at least one recommendation from fallback")
	}
}
