package domain

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidMint is returned when a mint address is not a 32-byte base58 key.
var ErrInvalidMint = errors.New("invalid mint address")

// Mint is a token mint address.
type Mint string

// String returns the string representation of Mint.
func (m Mint) String() string {
	return string(m)
}

// Validate checks the mint decodes as a 32-byte base58 public key.
func (m Mint) Validate() error {
	if m == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMint)
	}
	raw, err := base58.Decode(string(m))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMint, m, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %s decodes to %d bytes", ErrInvalidMint, m, len(raw))
	}
	return nil
}
