package chat

import "errors"

var (
	ErrValidation      = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
)
