package stream

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes sizes the viewer access token (256-bit).
const tokenBytes = 32

// GenerateStreamToken creates a cryptographically random viewer token.
// The token is stored on the camera row with a validity flag; issuing a
// new one replaces the previous, so at most one token per camera works
// at any moment.
func GenerateStreamToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating stream token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ViewerURL returns the relative playback URL for a token.
func ViewerURL(token string) string {
	return "/stream/live/" + token
}
