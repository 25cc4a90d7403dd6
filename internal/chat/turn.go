package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/RichardoC/mintchat/internal/gate"
	"github.com/RichardoC/mintchat/internal/llm"
	"github.com/RichardoC/mintchat/internal/models"
	"go.uber.org/zap"
)

const (
	kindChat    = "chat"
	kindAnalyze = "analyze"
)

var walletPrompts = map[models.Locale]string{
	models.LocaleEnglish: "You've used all your free messages. Connect a wallet to keep chatting.",
	models.LocaleChinese: "免费消息已用完，请连接钱包继续聊天。",
}

// WalletPrompt is the user-facing text sent with a gate denial.
func WalletPrompt(locale models.Locale) string {
	if p, ok := walletPrompts[locale]; ok {
		return p
	}
	return walletPrompts[models.DefaultLocale]
}

type ChatInput struct {
	SessionID     string
	Prompt        string
	Locale        string
	WalletAddress string
}

type ChatResult struct {
	SessionID        string
	Reply            string
	WalletAddress    string
	FreeMessagesLeft int
	// RequireWallet is set when the gate refused the turn. Nothing was
	// written and the model was not called.
	RequireWallet bool
	Locale        models.Locale
}

type AnalyzeInput struct {
	SessionID     string
	Mint          string
	Locale        string
	WalletAddress string
}

type AnalysisResult struct {
	SessionID        string
	Analysis         string
	Token            *models.TokenSnapshot
	FreeMessagesLeft int
	RequireWallet    bool
	Locale           models.Locale
}

// admission is the state of a session after the gate check of one turn.
type admission struct {
	session *models.Session
	locale  models.Locale
	allowed bool
}

// admit resolves the session, evaluates the gate against the count before
// this request and, when admitted, binds a newly supplied wallet if none is
// bound yet.
func (s *Service) admit(ctx context.Context, kind, sessionID, locale, walletAddress string) (*admission, error) {
	sess, err := s.resolve(ctx, sessionID, locale, walletAddress)
	if err != nil {
		return nil, err
	}

	count, err := s.store.UserMessageCount(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	a := &admission{session: sess, locale: parseLocale(locale, sess.Locale)}
	hasWallet := sess.HasWallet() || walletAddress != ""
	if s.policy.Evaluate(count, hasWallet) == gate.RequireWallet {
		s.metrics.GateBlocked(kind)
		s.metrics.Turn(kind, "blocked")
		s.logger.Info("wallet required",
			zap.String("session", sess.ID),
			zap.String("kind", kind),
			zap.Int("userMessages", count))
		return a, nil
	}
	a.allowed = true

	if walletAddress != "" && !sess.HasWallet() {
		if err := s.store.AttachWallet(ctx, sess.ID, walletAddress); err != nil {
			return nil, err
		}
		sess.WalletAddress = walletAddress
	}
	return a, nil
}

func (s *Service) remaining(ctx context.Context, sessionID string) (int, error) {
	count, err := s.store.UserMessageCount(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return s.policy.Remaining(count), nil
}

// Chat runs one plain chat turn. The user message is stored before the model
// is called and stays stored if the call fails. The reply is stored even
// when empty so roles keep alternating.
func (s *Service) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrValidation)
	}

	if in.SessionID != "" {
		defer s.lockSession(in.SessionID)()
	}

	a, err := s.admit(ctx, kindChat, in.SessionID, in.Locale, in.WalletAddress)
	if err != nil {
		return nil, err
	}
	sess := a.session
	res := &ChatResult{SessionID: sess.ID, WalletAddress: sess.WalletAddress, Locale: a.locale}
	if !a.allowed {
		res.RequireWallet = true
		return res, nil
	}

	userMsg, err := s.store.AppendMessage(ctx, sess.ID, models.RoleUser, prompt)
	if err != nil {
		return nil, err
	}

	recent, err := s.store.RecentMessages(ctx, sess.ID, s.opts.HistoryLimit+1)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Complete(ctx, llm.Request{
		System:   s.opts.Persona.SystemPrompt(a.locale),
		History:  priorHistory(recent, userMsg.ID, s.opts.HistoryLimit),
		Prompt:   prompt,
		Sampling: s.opts.Chat,
	})
	if err != nil {
		s.metrics.Turn(kindChat, "error")
		s.logger.Error("chat completion failed", zap.String("session", sess.ID), zap.Error(err))
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, sess.ID, models.RoleAssistant, reply); err != nil {
		return nil, err
	}

	res.Reply = reply
	if res.FreeMessagesLeft, err = s.remaining(ctx, sess.ID); err != nil {
		return nil, err
	}
	s.metrics.Turn(kindChat, "ok")
	return res, nil
}

// priorHistory drops the just-written message from recent and keeps at most
// limit earlier messages, oldest first.
func priorHistory(recent []models.Message, currentID int64, limit int) []models.Message {
	history := make([]models.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != currentID {
			history = append(history, m)
		}
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// Analyze runs one token-analysis turn. No history is sent to the model.
// The synthetic request and the reply are stored together, and only when
// the reply is non-empty.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error) {
	mint := strings.TrimSpace(in.Mint)
	if mint == "" {
		return nil, fmt.Errorf("%w: mint is required", ErrValidation)
	}

	if in.SessionID != "" {
		defer s.lockSession(in.SessionID)()
	}

	a, err := s.admit(ctx, kindAnalyze, in.SessionID, in.Locale, in.WalletAddress)
	if err != nil {
		return nil, err
	}
	sess := a.session
	res := &AnalysisResult{SessionID: sess.ID, Locale: a.locale}
	if !a.allowed {
		res.RequireWallet = true
		return res, nil
	}

	snap, err := s.snapshot.BuildSnapshot(ctx, mint)
	if err != nil {
		s.metrics.Turn(kindAnalyze, "error")
		return nil, err
	}
	res.Token = snap

	analysis, err := s.llm.Complete(ctx, llm.Request{
		System:   s.opts.Persona.SystemPrompt(a.locale),
		Prompt:   llm.AnalysisPrompt(snap),
		Sampling: s.opts.Analysis,
	})
	if err != nil {
		s.metrics.Turn(kindAnalyze, "error")
		s.logger.Error("analysis completion failed",
			zap.String("session", sess.ID),
			zap.String("mint", mint),
			zap.Error(err))
		return nil, err
	}

	if analysis != "" {
		if _, err := s.store.AppendExchange(ctx, sess.ID, "analyze token "+mint, analysis); err != nil {
			return nil, err
		}
		s.metrics.Turn(kindAnalyze, "ok")
	} else {
		s.metrics.Turn(kindAnalyze, "empty")
		s.logger.Warn("analysis produced no reply", zap.String("session", sess.ID), zap.String("mint", mint))
	}

	res.Analysis = analysis
	if res.FreeMessagesLeft, err = s.remaining(ctx, sess.ID); err != nil {
		return nil, err
	}
	return res, nil
}
