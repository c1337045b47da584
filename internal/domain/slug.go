// Package domain holds the plain data types shared by the storage, queue,
// and worker layers: accounts, assets, variations, and task payloads.
package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// UIDAlphabet is the fixed 36-character alphabet short asset uids are drawn
// from. It is also the alphabet variation versions are base-36 encoded in.
const UIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// UIDLength is the length of a generated short asset uid.
const UIDLength = 6

// NewUID returns a random 6-character uid drawn from UIDAlphabet. Callers
// are responsible for re-rolling on collision within an account's scope.
func NewUID() (string, error) {
	b := make([]byte, UIDLength)
	max := big.NewInt(int64(len(UIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = UIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// SlugName normalizes a human-supplied asset name: lowercased, spaces and
// underscores collapsed to dashes, anything outside [-a-z0-9/] dropped.
func SlugName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '/':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_' || r == ' ':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// SlugVariationName normalizes a variation name: allowed alphabet is
// [-_a-z0-9], and the result must equal the trimmed input exactly (callers
// use this to validate rather than silently coerce the name).
func SlugVariationName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// base36Digit maps a lowercase alphanumeric digit to its base-36 value.
func base36Digit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return 0
	}
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NextVersion returns the next 3-character, zero-padded, base-36 version
// string after current. An empty current is treated as "000", so the first
// call to NextVersion("") returns "001". Overflow past "zzz" yields a
// 4-character "1000" rather than wrapping, matching the testable property
// in the specification.
func NextVersion(current string) string {
	if current == "" {
		current = "000"
	}
	n := 0
	for i := 0; i < len(current); i++ {
		n = n*36 + base36Digit(current[i])
	}
	n++
	if n == 0 {
		return "000"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{base36Alphabet[n%36]}, digits...)
		n /= 36
	}
	for len(digits) < 3 {
		digits = append([]byte{'0'}, digits...)
	}
	return string(digits)
}
