package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Reset code parameters.
const (
	ResetCodeDigits = 6
	ResetCodeTTL    = 10 * time.Minute

	// MaxResetAttempts wrong guesses discard the live code.
	MaxResetAttempts = 5
)

var resetCodeSpace = big.NewInt(1_000_000)

// NewResetCode returns a uniformly random 6-digit numeric code, zero padded.
// The code authorises a password change, so it comes from crypto/rand.
func NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, resetCodeSpace)
	if err != nil {
		return "", fmt.Errorf("auth: generating reset code: %w", err)
	}
	return fmt.Sprintf("%0*d", ResetCodeDigits, n.Int64()), nil
}
