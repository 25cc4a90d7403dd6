package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleChinese Locale = "zh"

	DefaultLocale = LocaleEnglish
)

// ParseLocale maps an arbitrary client value onto the supported set,
// falling back to DefaultLocale.
func ParseLocale(s string) Locale {
	switch Locale(s) {
	case LocaleEnglish, LocaleChinese:
		return Locale(s)
	default:
		return DefaultLocale
	}
}

type Session struct {
	ID            string    `json:"sessionId"`
	Locale        Locale    `json:"locale"`
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasWallet reports whether a wallet is bound to the session.
func (s *Session) HasWallet() bool {
	return s != nil && s.WalletAddress != ""
}

type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
