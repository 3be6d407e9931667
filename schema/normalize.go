package schema

import (
	"strings"
	"unicode"
)

// NormalizeCommandLine trims surrounding whitespace from a submitted line.
// Embedded newlines from line continuation are kept.
func NormalizeCommandLine(line string) (string, error) {
	trimmed := strings.TrimFunc(line, unicode.IsSpace)
	if trimmed == "" {
		return "", ErrEmptyCommand
	}
	return trimmed, nil
}

// ValidateSessionID ensures an id is non-empty and printable.
func ValidateSessionID(id SessionID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrSessionNotFound
	}
	for _, r := range raw {
		if !unicode.IsPrint(r) {
			return ErrSessionNotFound
		}
	}
	return nil
}
