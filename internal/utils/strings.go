package utils

import (
	"strings"
)

// PadNumber left-pads the integer part of a numeric label to width, keeping any decimals.
// Labels that are not numeric are returned unchanged.
func PadNumber(label string, width int) string {
	if label == "" || strings.TrimLeft(label, "0123456789.") != "" {
		return label
	}

	// Split into integer and decimal parts
	intPart, decPart, hasDec := strings.Cut(label, ".")

	// Calculate required padding for integer part only
	padding := width - len(intPart)

	// Add padding if needed
	if padding > 0 {
		intPart = strings.Repeat("0", padding) + intPart
	}

	// Reconstruct number with original decimal part if it exists
	if hasDec {
		return intPart + "." + decPart
	}
	return intPart
}

// Truncate shortens s to at most maxLen runes, ending it with "..." when cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
