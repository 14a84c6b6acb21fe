// Package guidance implements the AI career-guidance pipeline: prompt
// composition, streamed and buffered chat against the model provider, and
// recommendation extraction with a deterministic fallback.
package guidance

import (
	"context"
	"iter"
	"log/slog"

	"github.com/elimu-labs/cbe-compass/internal/deepseek"
	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// apologyMessage replaces the assistant reply when the model returns nothing
// usable. Fixed wording so the client can rely on it.
const apologyMessage = "I apologize, but I could not generate a response. Please try again."

// Completer is the subset of the deepseek client the service needs.
type Completer interface {
	Complete(ctx context.Context, messages []deepseek.Message) (string, error)
	Stream(ctx context.Context, messages []deepseek.Message) (iter.Seq2[string, error], error)
}

// Service orchestrates career-guidance conversations and recommendations.
// Stateless: each call builds its own message list and stream, so any number
// of conversations may be in flight concurrently.
type Service struct {
	client Completer
}

// NewService creates a guidance service around the given model client.
func NewService(client Completer) *Service {
	return &Service{client: client}
}

// buildMessages assembles the outbound message list: system prompt, prior
// conversation, then the new user message.
func buildMessages(userText string, history []domain.ChatMessage, profile *domain.AssessmentProfile) []deepseek.Message {
	messages := make([]deepseek.Message, 0, len(history)+2)
	messages = append(messages, deepseek.Message{
		Role:    string(domain.RoleSystem),
		Content: ComposeSystemPrompt(profile),
	})
	for _, msg := range history {
		if msg.Role == domain.RoleSystem || msg.Content == "" {
			continue
		}
		messages = append(messages, deepseek.Message{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, deepseek.Message{Role: string(domain.RoleUser), Content: userText})
	return messages
}

// Chat streams the assistant reply for one user message. Deltas are yielded
// strictly in arrival order; a fatal transport or upstream error is yielded
// once and ends the sequence, without retracting chunks already delivered.
func (s *Service) Chat(ctx context.Context, userText string, history []domain.ChatMessage, profile *domain.AssessmentProfile) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		seq, err := s.client.Stream(ctx, buildMessages(userText, history, profile))
		if err != nil {
			yield("", err)
			return
		}
		for chunk, err := range seq {
			if !yield(chunk, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// StreamMessage streams the reply through the onChunk callback: exactly one
// invocation per delta frame, in frame arrival order. Returns when the stream
// ends, the context is canceled, or a fatal error occurs.
func (s *Service) StreamMessage(ctx context.Context, userText string, history []domain.ChatMessage, onChunk func(string), profile *domain.AssessmentProfile) error {
	for chunk, err := range s.Chat(ctx, userText, history, profile) {
		if err != nil {
			return err
		}
		onChunk(chunk)
	}
	return nil
}

// SendMessage returns the full assistant reply as one string. An empty model
// reply becomes the fixed apology message rather than an empty string.
func (s *Service) SendMessage(ctx context.Context, userText string, history []domain.ChatMessage, profile *domain.AssessmentProfile) (string, error) {
	content, err := s.client.Complete(ctx, buildMessages(userText, history, profile))
	if err != nil {
		return "", err
	}
	if content == "" {
		return apologyMessage, nil
	}
	return content, nil
}

// Recommend produces pathway recommendations for the profile. It asks the
// model for a JSON array and parses it out of whatever prose surrounds it; if
// the upstream call fails or nothing parseable comes back, it substitutes the
// deterministic rule-based recommender. Never fails and never returns an
// empty list. The second return value reports whether the model (true) or the
// fallback (false) produced the result.
func (s *Service) Recommend(ctx context.Context, profile domain.AssessmentProfile) ([]domain.CareerRecommendation, bool) {
	content, err := s.client.Complete(ctx, []deepseek.Message{
		{Role: string(domain.RoleSystem), Content: recommendationSystemPrompt},
		{Role: string(domain.RoleUser), Content: ComposeRecommendationPrompt(profile)},
	})
	if err != nil {
		slog.Warn("Recommendation call failed, using fallback", "error", err)
		return FallbackRecommendations(profile), false
	}

	recs, err := ParseRecommendations(content)
	if err != nil {
		slog.Warn("Failed to parse career recommendations, using fallback", "error", err)
		return FallbackRecommendations(profile), false
	}
	return recs, true
}
