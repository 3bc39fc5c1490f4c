package secrets

import "strings"

// Mask renders a secret value for display. Short values (≤8 chars) are
// fully masked; longer ones keep the first and last three characters.
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:3]) + strings.Repeat("*", len(runes)-6) + string(runes[len(runes)-3:])
}
