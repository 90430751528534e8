package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex id, used for messages, chats, invites,
// and usage rows. Ordering comes from created-at timestamps, not the id.
func NewID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
