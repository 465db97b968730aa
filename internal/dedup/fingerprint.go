// Package dedup derives report fingerprints and resolves a new report to the
// canonical report it duplicates, if any.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxNormalizedLength bounds how much of the normalized description feeds the
// fingerprint.
const MaxNormalizedLength = 200

// Normalize lowercases s, drops every character outside [a-z0-9] and
// whitespace, trims, and keeps the first MaxNormalizedLength characters.
// Whitespace follows the ECMAScript \s class so fingerprints agree with other
// producers of the same format. Truncation runs after the trim, so a result
// cut at a whitespace character keeps it; normalizing that result again
// drops it.
func Normalize(s string) string {
	lower := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || isSpace(r) {
			b.WriteRune(r)
		}
	}

	out := []rune(strings.TrimFunc(b.String(), isSpace))
	if len(out) > MaxNormalizedLength {
		out = out[:MaxNormalizedLength]
	}
	return string(out)
}

// Fingerprint returns the hex SHA-256 of "appID:normalized:screen".
// The output is 64 hex characters and must never change for a given input.
func Fingerprint(appID, description, screenName string) string {
	input := appID + ":" + Normalize(description) + ":" + screenName
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}
