package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// guestSessionBytes is the entropy behind a guest session id.
const guestSessionBytes = 32

// NewGuestSessionID returns a random id that keys a visitor's guest carts.
// The id is unpadded base64url so it can be stored in a cookie verbatim.
func NewGuestSessionID() (string, error) {
	b := make([]byte, guestSessionBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating guest session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
