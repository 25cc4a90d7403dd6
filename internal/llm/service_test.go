package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RichardoC/mintchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	err      error
	noChoice bool
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
	deadline bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, opt := range options {
		opt(&f.options)
	}
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	if f.noChoice {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestCompleteBuildsMessageArray(t *testing.T) {
	model := &fakeModel{reply: "  gm fren  "}
	svc := NewWithModel(model, time.Second, nil)

	reply, err := svc.Complete(context.Background(), Request{
		System: "persona",
		History: []models.Message{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
		Prompt:   "what is this token",
		Sampling: Sampling{Temperature: 0.4, MaxTokens: 900},
	})
	require.NoError(t, err)
	assert.Equal(t, "gm fren", reply)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, "persona", textOf(t, model.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[3].Role)
	assert.Equal(t, "what is this token", textOf(t, model.messages[3]))

	assert.Equal(t, 0.4, model.options.Temperature)
	assert.Equal(t, 900, model.options.MaxTokens)
	assert.True(t, model.deadline)
}

func TestCompleteEmptyReplyIsNotAnError(t *testing.T) {
	svc := NewWithModel(&fakeModel{reply: "   "}, 0, nil)

	reply, err := svc.Complete(context.Background(), Request{System: "s", Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestCompleteFailures(t *testing.T) {
	svc := NewWithModel(&fakeModel{err: errors.New("connection refused")}, time.Second, nil)
	_, err := svc.Complete(context.Background(), Request{System: "s", Prompt: "p"})
	assert.ErrorIs(t, err, ErrCompletionUnavailable)

	svc = NewWithModel(&fakeModel{noChoice: true}, time.Second, nil)
	_, err = svc.Complete(context.Background(), Request{System: "s", Prompt: "p"})
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
}

func TestNewBuildsOpenAICompatibleClient(t *testing.T) {
	svc, err := New("http://localhost:11434/v1/", "fake", "llama3.1:8b", time.Second, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSystemPromptLocaleAndStances(t *testing.T) {
	p := Persona{Name: "Minty", DesignatedContract: "So11111111111111111111111111111111111111112"}

	en := p.SystemPrompt(models.LocaleEnglish)
	assert.Contains(t, en, "Minty")
	assert.Contains(t, en, "not financial advice")
	assert.Contains(t, en, "Never state or guess prices")
	assert.Contains(t, en, "So11111111111111111111111111111111111111112")
	assert.Contains(t, en, "Reply in English")

	zh := p.SystemPrompt(models.LocaleChinese)
	assert.Contains(t, zh, "简体中文")

	p.Bilingual = true
	both := p.SystemPrompt(models.LocaleChinese)
	assert.Contains(t, both, "bilingually")
	assert.NotContains(t, both, "Reply in English. Keep")
}

func TestAnalysisPromptCarriesSnapshotFacts(t *testing.T) {
	owner := "owner-wallet"
	snap := &models.TokenSnapshot{
		Mint:           "MintAddr",
		Decimals:       6,
		Supply:         1000,
		RawAmount:      "1000000000",
		UIAmountString: "1000",
		LargestHolders: []models.HolderRecord{
			{Address: "acct-1", Owner: &owner, Amount: "600000000", UIAmount: 600, UIAmountString: "600"},
			{Address: "acct-2", Amount: "100000000", UIAmount: 100, UIAmountString: "100"},
		},
		LastUpdated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	prompt := AnalysisPrompt(snap)
	assert.Contains(t, prompt, "Mint: MintAddr")
	assert.Contains(t, prompt, "Decimals: 6")
	assert.Contains(t, prompt, "Total supply: 1000 (raw 1000000000)")
	assert.Contains(t, prompt, "owner owner-wallet")
	assert.Contains(t, prompt, "owner unknown")
	assert.Contains(t, prompt, "60.00% of supply")
	assert.Contains(t, prompt, "Top 2 holders together: 70.00% of supply.")
	assert.True(t, strings.HasSuffix(prompt, "Do not mention any price."))
}
