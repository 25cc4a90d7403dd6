package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/RichardoC/mintchat/internal/chain"
	"github.com/RichardoC/mintchat/internal/chat"
	"github.com/RichardoC/mintchat/internal/llm"
	"github.com/RichardoC/mintchat/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc      *chat.Service
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		logger:   logger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("solana_address", func(fl validator.FieldLevel) bool {
		return chain.ValidateAddress(fl.Field().String()) == nil
	})
	return v
}

type SessionRequest struct {
	SessionID     string `json:"sessionId" validate:"omitempty,uuid"`
	Locale        string `json:"locale" validate:"max=16"`
	WalletAddress string `json:"walletAddress" validate:"omitempty,solana_address"`
}

type SessionResponse struct {
	SessionID        string           `json:"sessionId"`
	WalletAddress    *string          `json:"walletAddress"`
	Locale           models.Locale    `json:"locale"`
	MessageCount     int              `json:"messageCount"`
	UserMessageCount int              `json:"userMessageCount"`
	FreeMessagesLeft int              `json:"freeMessagesLeft"`
	Messages         []models.Message `json:"messages"`
}

type MessagesResponse struct {
	SessionID string           `json:"sessionId"`
	Messages  []models.Message `json:"messages"`
}

type ChatRequest struct {
	SessionID     string `json:"sessionId" validate:"omitempty,uuid"`
	Prompt        string `json:"prompt" validate:"required,max=4000"`
	Locale        string `json:"locale" validate:"max=16"`
	WalletAddress string `json:"walletAddress" validate:"omitempty,solana_address"`
}

type ChatResponse struct {
	SessionID        string  `json:"sessionId"`
	Message          string  `json:"message"`
	WalletAddress    *string `json:"walletAddress"`
	FreeMessagesLeft int     `json:"freeMessagesLeft"`
}

type AnalyzeRequest struct {
	SessionID     string `json:"sessionId" validate:"omitempty,uuid"`
	Mint          string `json:"mint" validate:"required"`
	Locale        string `json:"locale" validate:"max=16"`
	WalletAddress string `json:"walletAddress" validate:"omitempty,solana_address"`
}

type AnalyzeResponse struct {
	SessionID        string                `json:"sessionId"`
	Analysis         string                `json:"analysis"`
	Token            *models.TokenSnapshot `json:"token"`
	FreeMessagesLeft int                   `json:"freeMessagesLeft"`
}

type WalletRequiredResponse struct {
	RequireWallet bool   `json:"requireWallet"`
	Message       string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	state, err := h.svc.StartSession(r.Context(), chat.SessionInput{
		SessionID:     req.SessionID,
		Locale:        req.Locale,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:        state.Session.ID,
		WalletAddress:    nullable(state.Session.WalletAddress),
		Locale:           state.Session.Locale,
		MessageCount:     len(state.Messages),
		UserMessageCount: state.UserMessageCount,
		FreeMessagesLeft: state.FreeMessagesLeft,
		Messages:         state.Messages,
	})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sess, messages, err := h.svc.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, MessagesResponse{SessionID: sess.ID, Messages: messages})
}

func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Token(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) AnalyzeToken(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	res, err := h.svc.Analyze(r.Context(), chat.AnalyzeInput{
		SessionID:     req.SessionID,
		Mint:          req.Mint,
		Locale:        req.Locale,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.RequireWallet {
		h.writeWalletRequired(w, res.Locale)
		return
	}

	h.writeJSON(w, http.StatusOK, AnalyzeResponse{
		SessionID:        res.SessionID,
		Analysis:         res.Analysis,
		Token:            res.Token,
		FreeMessagesLeft: res.FreeMessagesLeft,
	})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "prompt is required"})
		return
	}

	res, err := h.svc.Chat(r.Context(), chat.ChatInput{
		SessionID:     req.SessionID,
		Prompt:        req.Prompt,
		Locale:        req.Locale,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.RequireWallet {
		h.writeWalletRequired(w, res.Locale)
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:        res.SessionID,
		Message:          res.Reply,
		WalletAddress:    nullable(res.WalletAddress),
		FreeMessagesLeft: res.FreeMessagesLeft,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "uuid":
			msgs = append(msgs, fe.Field()+" must be a UUID")
		case "solana_address":
			msgs = append(msgs, fe.Field()+" must be a base58 public key")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeError maps service errors onto status codes. 500 bodies carry no
// internal detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrSessionNotFound):
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, chain.ErrInvalidMint):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid mint address"})
	case errors.Is(err, chain.ErrRPCUnavailable):
		h.logger.Warn("token lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "token lookup failed"})
	case errors.Is(err, llm.ErrCompletionUnavailable):
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "language model unavailable"})
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *Handler) writeWalletRequired(w http.ResponseWriter, locale models.Locale) {
	h.writeJSON(w, http.StatusForbidden, WalletRequiredResponse{
		RequireWallet: true,
		Message:       chat.WalletPrompt(locale),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
