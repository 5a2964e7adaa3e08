package usecase

import (
	"crypto/rand"
	"io"

	"crypto-paylink/internal/domain/model"
)

// generateReferralCode creates a random, human-readable referral code from
// the ambiguity-reduced alphabet (no O/0, I/1/l).
func generateReferralCode() (string, error) {
	buffer := make([]byte, model.GeneratedCodeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	for i := 0; i < model.GeneratedCodeLength; i++ {
		buffer[i] = model.ReferralCodeAlphabet[int(buffer[i])%len(model.ReferralCodeAlphabet)]
	}
	return string(buffer), nil
}
