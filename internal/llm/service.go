package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/mintchat/internal/metrics"
	"github.com/RichardoC/mintchat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrCompletionUnavailable covers model invocation failures, timeouts and
// responses without any choice.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// Sampling holds the per-operation generation parameters.
type Sampling struct {
	Temperature float64
	MaxTokens   int
}

// Request is one model invocation: a system instruction, prior turns in
// ascending order, and the new user input.
type Request struct {
	System   string
	History  []models.Message
	Prompt   string
	Sampling Sampling
}

type Service struct {
	llm     llms.Model
	timeout time.Duration
	metrics *metrics.Metrics
}

func New(baseURL, token, model string, timeout time.Duration, m *metrics.Metrics) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, timeout, m), nil
}

// NewWithModel wraps any langchaingo model.
func NewWithModel(llm llms.Model, timeout time.Duration, m *metrics.Metrics) *Service {
	return &Service{llm: llm, timeout: timeout, metrics: m}
}

// Messages converts a request into the provider message array:
// system, then history, then the new user input.
func Messages(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	for _, m := range req.History {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
	return msgs
}

// Complete returns the trimmed text of the first choice. An empty reply is
// not an error.
func (s *Service) Complete(ctx context.Context, req Request) (reply string, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveUpstream("llm", start, err) }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Sampling.Temperature)}
	if req.Sampling.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.Sampling.MaxTokens))
	}

	resp, err := s.llm.GenerateContent(ctx, Messages(req), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", ErrCompletionUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: response has no choices", ErrCompletionUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
