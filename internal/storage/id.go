package storage

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"regexp"
)

const (
	// SHA1Short is the ID length shown in listings.
	SHA1Short = 7
	// SHA1MinLen is the shortest prefix Find treats as an ID.
	SHA1MinLen = 4

	idEntropy = 64
)

var sha1Regexp = regexp.MustCompile(`^[0-9a-f]{40}$`)

// NewConversationID returns a random 40 character hex identifier.
func NewConversationID() string {
	b := make([]byte, idEntropy)
	_, _ = rand.Read(b)
	sum := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// IsConversationID reports whether s has the shape of a full conversation ID.
func IsConversationID(s string) bool {
	return sha1Regexp.MatchString(s)
}
