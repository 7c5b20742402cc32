package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseAPIKey extracts key_id and random_data from API key format.
// Format: mg-v1-<key_id>-<random_data> (102 chars total).
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (keyID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != "mg" || parts[1] != "v1" {
		return "", "", ErrInvalidKeyFormat
	}

	keyID = parts[2]
	randomData = parts[3]

	// key_id is 32 hex chars (UUID without hyphens), random_data 64 (256 bits)
	if len(keyID) != 32 || len(randomData) != 64 {
		return "", "", ErrInvalidKeyFormat
	}

	for _, c := range keyID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return keyID, randomData, nil
}

// ComputeHMAC computes HMAC-SHA256 signature of API key using secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// VerifyHMAC compares digests in constant time.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(keyID, randomData string) string {
	return fmt.Sprintf("mg-v1-%s-%s", keyID, randomData)
}

// GenerateAPIKey creates a new key with a UUIDv7 key ID.
func GenerateAPIKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating key id: %w", err)
	}
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return FormatAPIKey(strings.ReplaceAll(id.String(), "-", ""), hex.EncodeToString(random)), nil
}
