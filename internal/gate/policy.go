// Package gate decides whether a session may take another free turn.
package gate

type Decision int

const (
	Allow Decision = iota
	RequireWallet
)

func (d Decision) String() string {
	if d == RequireWallet {
		return "require_wallet"
	}
	return "allow"
}

// Policy gates sessions on their user-message count. The limit applies to the
// next request: a turn admitted at FreeLimit-1 completes even though it
// brings the count up to the limit.
type Policy struct {
	FreeLimit int
}

func New(freeLimit int) Policy {
	return Policy{FreeLimit: freeLimit}
}

// Evaluate must run before any model call or message write for a request.
func (p Policy) Evaluate(userMessageCount int, hasWallet bool) Decision {
	if userMessageCount < p.FreeLimit || hasWallet {
		return Allow
	}
	return RequireWallet
}

// Remaining is the number of free turns left, never negative.
func (p Policy) Remaining(userMessageCount int) int {
	return max(0, p.FreeLimit-userMessageCount)
}
