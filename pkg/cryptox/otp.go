package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/pquerna/otp"
)

const (
	numericCodeMin = 100000
	numericCodeMax = 999999
)

// NewNumericCode returns a uniformly random six digit code in the inclusive
// range 100000-999999, drawn from crypto/rand.
func NewNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(numericCodeMax-numericCodeMin+1))
	if err != nil {
		return "", fmt.Errorf("cryptox: generate numeric code: %w", err)
	}

	// #nosec G115 - bounded by numericCodeMax
	return otp.DigitsSix.Format(int32(n.Int64() + numericCodeMin)), nil
}
