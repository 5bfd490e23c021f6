package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GenerateRandomString returns a URL-safe random string of the given length.
func GenerateRandomString(length int) string {
	if length <= 0 {
		return ""
	}
	// Calculate the number of bytes needed to represent the string
	numBytes := (length * 6) / 8
	if (length*6)%8 != 0 {
		numBytes++
	}

	randomBytes := make([]byte, numBytes)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Errorln("Error generating random string:", err)
		return ""
	}

	randomString := base64.RawURLEncoding.EncodeToString(randomBytes)
	return randomString[:length]
}

// ContentHash is the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MaskSecret keeps the first four characters of a token for logging.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
