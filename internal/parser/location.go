package parser

import "strings"

// extractLocation is the fourth pipeline stage. Only a trailing
// "at/in <Place>" phrase is recognized; by now every time-bearing "at" has
// been consumed, so what is left at the tail names a place.
func extractLocation(text string) (string, string) {
	loc := reLocation.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text
	}
	place := strings.TrimSpace(text[loc[2]:loc[3]])
	if len(place) < 2 || reLeadingDigits.MatchString(place) {
		return "", text
	}
	return place, removeSpan(text, loc[0], loc[1])
}
