// Package utils provides small helpers shared across the automation
// engine: ID generation and duration parsing.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a UUID v4 string suitable for record identifiers.
func NewID() string {
	return uuid.NewString()
}

// GenerateEventID generates a unique event ID with a prefix and source ID.
// The format is "prefix-sourceID-timestamp" with a nanosecond timestamp.
func GenerateEventID(prefix, sourceID string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, sourceID, time.Now().UnixNano())
}

// GenerateRandomID generates a cryptographically secure random hex ID of
// the given length.
func GenerateRandomID(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}

	return hex.EncodeToString(bytes)[:length], nil
}
