package post

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewPostID builds "{platform}_{unixSeconds}_{8 hex chars}".
// The random suffix keeps IDs unique within the same platform-second.
func NewPostID(p Platform, now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s_%d_%s", p, now.Unix(), hex.EncodeToString(buf[:]))
}
