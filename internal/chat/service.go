// Package chat runs chat and token-analysis turns against a session: gate
// check, context assembly, model invocation and persistence, in that order.
package chat

import (
	"context"
	"fmt"

	"github.com/RichardoC/mintchat/internal/gate"
	"github.com/RichardoC/mintchat/internal/llm"
	"github.com/RichardoC/mintchat/internal/metrics"
	"github.com/RichardoC/mintchat/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	CreateSession(ctx context.Context, locale models.Locale, walletAddress string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	AttachWallet(ctx context.Context, id, walletAddress string) error
	UpdateLocale(ctx context.Context, id string, locale models.Locale) error
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error)
	AppendExchange(ctx context.Context, sessionID, userContent, assistantContent string) ([]models.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	UserMessageCount(ctx context.Context, sessionID string) (int, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context, mint string) (*models.TokenSnapshot, error)
}

type Options struct {
	FreeLimit    int
	HistoryLimit int
	// SerializeSessions runs the gate check and the writes of one turn under
	// a per-session lock. Without it two concurrent turns on the same
	// session may both pass a gate that only one should.
	SerializeSessions bool
	Persona           llm.Persona
	Chat              llm.Sampling
	Analysis          llm.Sampling
}

type Service struct {
	store    Store
	llm      Completer
	snapshot SnapshotBuilder
	policy   gate.Policy
	opts     Options
	locks    *sessionLocks
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(store Store, completer Completer, snapshot SnapshotBuilder, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 8
	}
	s := &Service{
		store:    store,
		llm:      completer,
		snapshot: snapshot,
		policy:   gate.New(opts.FreeLimit),
		opts:     opts,
		logger:   logger,
		metrics:  m,
	}
	if opts.SerializeSessions {
		s.locks = newSessionLocks()
	}
	return s
}

// FreeLimit is the number of user turns allowed without a wallet.
func (s *Service) FreeLimit() int {
	return s.opts.FreeLimit
}

type SessionInput struct {
	SessionID     string
	Locale        string
	WalletAddress string
}

type SessionState struct {
	Session          *models.Session
	Messages         []models.Message
	UserMessageCount int
	FreeMessagesLeft int
}

// StartSession returns the existing session for SessionID or creates a new
// one. On an existing session a supplied wallet replaces the bound one and a
// supplied locale replaces the stored one.
func (s *Service) StartSession(ctx context.Context, in SessionInput) (*SessionState, error) {
	sess, err := s.lookup(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		sess, err = s.store.CreateSession(ctx, parseLocale(in.Locale, models.DefaultLocale), in.WalletAddress)
		if err != nil {
			return nil, err
		}
		s.logger.Info("session created", zap.String("session", sess.ID), zap.String("locale", string(sess.Locale)))
	} else {
		if in.WalletAddress != "" && in.WalletAddress != sess.WalletAddress {
			if err := s.store.AttachWallet(ctx, sess.ID, in.WalletAddress); err != nil {
				return nil, err
			}
			sess.WalletAddress = in.WalletAddress
		}
		if locale := parseLocale(in.Locale, sess.Locale); locale != sess.Locale {
			if err := s.store.UpdateLocale(ctx, sess.ID, locale); err != nil {
				return nil, err
			}
			sess.Locale = locale
		}
	}

	messages, err := s.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.UserMessageCount(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	return &SessionState{
		Session:          sess,
		Messages:         messages,
		UserMessageCount: count,
		FreeMessagesLeft: s.policy.Remaining(count),
	}, nil
}

// Messages returns the full history of an existing session.
func (s *Service) Messages(ctx context.Context, sessionID string) (*models.Session, []models.Message, error) {
	if sessionID == "" {
		return nil, nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	messages, err := s.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, messages, nil
}

// Token builds a fresh snapshot for mint.
func (s *Service) Token(ctx context.Context, mint string) (*models.TokenSnapshot, error) {
	return s.snapshot.BuildSnapshot(ctx, mint)
}

// lookup returns nil, nil for an empty or unknown id.
func (s *Service) lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id %q is not a UUID", ErrValidation, sessionID)
	}
	return s.store.GetSession(ctx, sessionID)
}

// resolve returns the session for id, creating one when id is empty or
// unknown. A new session gets the supplied wallet directly.
func (s *Service) resolve(ctx context.Context, sessionID, locale, walletAddress string) (*models.Session, error) {
	sess, err := s.lookup(ctx, sessionID)
	if err != nil || sess != nil {
		return sess, err
	}
	sess, err = s.store.CreateSession(ctx, parseLocale(locale, models.DefaultLocale), walletAddress)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created", zap.String("session", sess.ID))
	return sess, nil
}

func (s *Service) lockSession(id string) func() {
	if s.locks == nil {
		return func() {}
	}
	return s.locks.lock(id)
}

func parseLocale(value string, fallback models.Locale) models.Locale {
	if value == "" {
		return fallback
	}
	return models.ParseLocale(value)
}
