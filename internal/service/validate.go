package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Input bounds.
const (
	MaxTitleLength       = 100
	MaxDates             = 100
	MaxParticipantLength = 50
	MaxParticipants      = 200
)

// unsafeNameChars cannot appear in participant names: they would break the
// availability key layout or act as SCAN/LIKE pattern syntax.
const unsafeNameChars = `:*?[]/\`

const dateLayout = "2006-01-02"

// ValidDate reports whether s is a calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func validateTitle(v *ValidationError, raw string) string {
	title := strings.TrimSpace(raw)
	switch {
	case title == "":
		v.add("title", "title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		v.add("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	return title
}

// validateDates checks format and count and drops duplicates while keeping
// the caller's order.
func validateDates(v *ValidationError, dates []string) []string {
	if len(dates) == 0 {
		v.add("dates", "at least one date is required")
		return nil
	}
	out := make([]string, 0, len(dates))
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if !ValidDate(d) {
			v.add("dates", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", d))
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	if len(out) > MaxDates {
		v.add("dates", fmt.Sprintf("at most %d dates are allowed", MaxDates))
	}
	return out
}

// ValidateParticipantName returns a message describing why name is
// unusable, or "" when it is fine.
func ValidateParticipantName(name string) string {
	switch {
	case strings.TrimSpace(name) == "":
		return "participant name is required"
	case utf8.RuneCountInString(name) > MaxParticipantLength:
		return fmt.Sprintf("participant name must be at most %d characters", MaxParticipantLength)
	case !utf8.ValidString(name):
		return "participant name must be valid UTF-8"
	}
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(unsafeNameChars, r) {
			return fmt.Sprintf("participant name must not contain %q", r)
		}
	}
	return ""
}

func validateParticipants(v *ValidationError, names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if msg := ValidateParticipantName(n); msg != "" {
			v.add("participants", msg)
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) > MaxParticipants {
		v.add("participants", fmt.Sprintf("at most %d participants are allowed", MaxParticipants))
	}
	return out
}

// dedupe drops repeated values and keeps first-seen order.  The result is
// never nil.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
