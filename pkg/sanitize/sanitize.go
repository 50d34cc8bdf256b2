// Package sanitize normalizes user-supplied text before it is stored or
// relayed to other clients.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxBodyLength caps a chat message body, in runes
	MaxBodyLength = 4096

	// MaxDisplayNameLength caps a profile display name, in runes
	MaxDisplayNameLength = 64
)

var usernamePattern = regexp.MustCompile(`[^a-z0-9._-]`)

// Body trims a message body, drops control characters except newline and
// tab, and clamps it to MaxBodyLength runes.
func Body(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > MaxBodyLength {
		s = string(runes[:MaxBodyLength])
	}
	return s
}

// Username lowercases a username and strips everything outside
// [a-z0-9._-].
func Username(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return usernamePattern.ReplaceAllString(s, "")
}

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DisplayName trims a display name, drops control characters, and clamps
// it to MaxDisplayNameLength runes.
func DisplayName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > MaxDisplayNameLength {
		s = string(runes[:MaxDisplayNameLength])
	}
	return s
}
