package gate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// reviewIDBytes is the entropy of a review ID. Hex encoding doubles it into
// a 10 character token.
const reviewIDBytes = 5

// NewReviewID returns a random review ID.
func NewReviewID() (string, error) {
	var buf [reviewIDBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return hex.EncodeToString(buf[:]), nil
}
