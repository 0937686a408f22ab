// Package util provides shared utility functions.
package util

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// nameAlphabet is the character set used for generated peer names.
const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultNameLength is the length of names produced by RandomName when the
// user does not pick one.
const DefaultNameLength = 8

// RandomName returns a random alphanumeric peer name of the given length.
// It panics if the system random source fails.
func RandomName(length int) string {
	if length <= 0 {
		length = DefaultNameLength
	}
	limit := big.NewInt(int64(len(nameAlphabet)))
	name := make([]byte, length)
	for i := range name {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic("util: crypto/rand failed: " + err.Error())
		}
		name[i] = nameAlphabet[n.Int64()]
	}
	return string(name)
}

// NameOrRandom trims name and falls back to a random one when it is empty.
func NameOrRandom(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return RandomName(DefaultNameLength)
}
