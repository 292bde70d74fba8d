package packages

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// maxNameBytes leaves room under the 255 byte file name limit for the
// ".lock", ".json" and ".log" suffixes of per-package files.
const maxNameBytes = 250

var ErrInvalidName = errors.New("invalid package name")

// Normalize turns a user supplied name into the directory-safe key packages
// are stored under. Surrounding space is dropped, every character other than
// a letter, digit or dash becomes a dash, and the result is lower case, so
// "My World" and "my-world" name the same package. Names longer than
// maxNameBytes are rejected rather than shortened.
func Normalize(name string) (string, error) {
	var b strings.Builder
	meaningful := false
	for _, r := range strings.TrimSpace(name) {
		alnum := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case alnum:
			r = unicode.ToLower(r)
		case r != '-':
			r = '-'
		}
		b.WriteRune(r)
		meaningful = meaningful || alnum
	}

	if !meaningful {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if b.Len() > maxNameBytes {
		return "", fmt.Errorf("%w: %d bytes, limit is %d", ErrInvalidName, b.Len(), maxNameBytes)
	}
	return b.String(), nil
}
