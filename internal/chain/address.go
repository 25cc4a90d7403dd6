package chain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const publicKeyLength = 32

// NativeMint is the wrapped native token.
const NativeMint = "So11111111111111111111111111111111111111112"

// ValidateAddress checks that s is a base58-encoded 32 byte public key.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidMint)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58", ErrInvalidMint, s)
	}
	if len(raw) != publicKeyLength {
		return fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidMint, s, len(raw))
	}
	return nil
}
