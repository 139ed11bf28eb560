package once

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// EntryIDLength is the number of symbols in an entry id.
	EntryIDLength = 6

	entryIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// largest multiple of the alphabet size that fits in a byte
	entryIDByteLimit = 256 - 256%len(entryIDAlphabet)
)

// NewEntryID returns a random entry id. Bytes at or above the largest
// multiple of the alphabet size are rejected so every symbol is equally
// likely.
func NewEntryID() (string, error) {
	var sb strings.Builder
	sb.Grow(EntryIDLength)
	buf := make([]byte, EntryIDLength*2)
	for sb.Len() < EntryIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= entryIDByteLimit {
				continue
			}
			sb.WriteByte(entryIDAlphabet[int(b)%len(entryIDAlphabet)])
			if sb.Len() == EntryIDLength {
				break
			}
		}
	}
	return sb.String(), nil
}

// ValidEntryID reports whether id has the shape of an entry id.
func ValidEntryID(id string) bool {
	if len(id) != EntryIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(entryIDAlphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}

// ValidateFilename rejects names that would escape the entry's key prefix
// or that storage backends cannot hold as a key: invalid UTF-8 and control
// characters.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidFilename
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidFilename
	case len(name) > 255:
		return ErrInvalidFilename
	case !utf8.ValidString(name):
		return ErrInvalidFilename
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return ErrInvalidFilename
	}
	return nil
}
