package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	accessCodeMin   = 100000
	accessCodeRange = 900000
)

// generateAccessCode returns a random six-digit code. Codes are not checked
// for uniqueness.
func generateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(accessCodeRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+accessCodeMin), nil
}
