package utils

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
)

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateParticipantID returns a random id safe to embed in a room key.
func GenerateParticipantID() string {
	return "p-" + randomHex(6)
}

func GenerateTraceID() string {
	return randomHex(16)
}

// RoomKey joins participant ids in lexicographic order, so both sides derive
// the same key.
func RoomKey(ids ...string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "_")
}
