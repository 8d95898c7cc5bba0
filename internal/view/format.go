package view

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// UnknownAuthor is shown for posts whose author name could not be resolved.
const UnknownAuthor = "Unknown User"

// DisplayAuthor returns name, or UnknownAuthor when it is empty.
func DisplayAuthor(name string) string {
	if name == "" {
		return UnknownAuthor
	}
	return name
}

// Initials returns up to two upper-case initials for an avatar, "U" for an
// empty name.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "U"
	}
	return b.String()
}

// Ago formats a post time relative to now. Posts whose server timestamp is
// not known yet read "Just now".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "Just now"
	}
	return humanize.Time(t)
}
