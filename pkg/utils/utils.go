package utils

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var shortIDPattern = regexp.MustCompile("^[0-9a-fA-F]{8}$")

// IsValidShortID checks if id matches the short hash pattern used for slides and layers
func IsValidShortID(id string) bool {
	return shortIDPattern.MatchString(id)
}

// GenerateShortUUID generates a short UUID (8 characters) for slide and layer ids
func GenerateShortUUID() string {
	fullUUID := uuid.New().String()
	// Take first 8 characters for a short but still unique identifier
	return strings.ReplaceAll(fullUUID[:8], "-", "")
}

// GenerateRequestID generates an id for correlating requests against the remote API
func GenerateRequestID() string {
	return uuid.NewString()
}

// RoundTo rounds v to the given number of decimal places
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
