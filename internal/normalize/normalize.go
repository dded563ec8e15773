// Package normalize converts raw upstream field shapes into typed values.
// Every function is pure: no I/O, no shared state, and bad input yields an
// explicit "unknown" result instead of an error.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// UnknownLine is returned by InvertHandicapLine for input that is not a number
const UnknownLine = "N/A"

// minPlayerNameLen is the shortest parenthetical accepted as a player name
const minPlayerNameLen = 4

// nonPlayerMarkers identify parentheticals that qualify the team
// (gender, age group, reserve side) rather than naming a player
var nonPlayerMarkers = []string{
	"feminino",
	"femenino",
	"women",
	"sub-",
	"reserva",
	"reserves",
}

var (
	trailingParenPattern = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)\s*$`)
	scorePattern         = regexp.MustCompile(`^\d+-\d+$`)
)

// SplitTeamAndPlayer extracts a trailing parenthetical as the player name.
// When the parenthetical is a team qualifier or too short, the whole input
// is the team name and ok is false.
func SplitTeamAndPlayer(name string) (team, player string, ok bool) {
	name = strings.TrimSpace(name)
	m := trailingParenPattern.FindStringSubmatch(name)
	if m == nil {
		return name, "", false
	}

	base := strings.TrimSpace(m[1])
	candidate := strings.TrimSpace(m[2])
	if base == "" || utf8.RuneCountInString(candidate) < minPlayerNameLen {
		return name, "", false
	}

	lower := strings.ToLower(candidate)
	for _, marker := range nonPlayerMarkers {
		if strings.Contains(lower, marker) {
			return name, "", false
		}
	}

	return base, candidate, true
}

// InvertHandicapLine negates a handicap line, e.g. "1.5" -> "-1.5".
// Zero is rendered as "0.0" and integral values keep one decimal place.
func InvertHandicapLine(value string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return UnknownLine
	}
	if v == 0 {
		return "0.0"
	}

	out := strconv.FormatFloat(-v, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// Bounds for a plausible event instant; anything outside is treated as garbage.
var (
	minInstant = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxInstant = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
)

// ToLocalInstant converts a unix timestamp (seconds, as a decimal string)
// to an instant in loc. ok is false for empty, non-numeric or out-of-range
// input.
func ToLocalInstant(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, false
		}
		if f < float64(minInstant) || f > float64(maxInstant) {
			return time.Time{}, false
		}
		secs = int64(f)
	}
	if secs <= minInstant || secs > maxInstant {
		return time.Time{}, false
	}

	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(secs, 0).In(loc), true
}

// ParseScore accepts only "<int>-<int>" scores
func ParseScore(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !scorePattern.MatchString(raw) {
		return "", false
	}
	return raw, true
}
