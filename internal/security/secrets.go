package security

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MinKeyLength is the shortest API key accepted without a warning.
	MinKeyLength = 32

	// MinEntropy is the minimum Shannon entropy expected of an API key.
	MinEntropy = 3.5
)

var placeholderKeys = map[string]bool{
	"your-anon-key":         true,
	"your-service-role-key": true,
	"replace-with-key":      true,
	"changeme":              true,
	"secret":                true,
	"password":              true,
}

// CheckKey reports why an API key looks unsafe to deploy with, or nil.
// Keys are compared for equality on every request, so a guessable key is
// the whole authentication story.
func CheckKey(key string) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("key too short (minimum %d characters, got %d)", MinKeyLength, len(key))
	}

	keyLower := strings.ToLower(key)
	if placeholderKeys[keyLower] || strings.Contains(keyLower, "changeme") || strings.Contains(keyLower, "replace") {
		return fmt.Errorf("key appears to be a placeholder value")
	}

	if IsWeakKey(key) {
		return fmt.Errorf("key has insufficient entropy (%.2f < %.2f)", calculateEntropy(key), MinEntropy)
	}

	return nil
}

// IsWeakKey performs a quick check if a key is obviously weak.
func IsWeakKey(key string) bool {
	if len(key) == 0 {
		return true
	}

	// All same character
	if len(strings.Trim(key, string(key[0]))) == 0 {
		return true
	}

	// Sequential characters (e.g., "12345678...")
	if isSequential(key) {
		return true
	}

	return calculateEntropy(key) < MinEntropy
}

// calculateEntropy computes the Shannon entropy of a string.
// Returns a value between 0 (completely predictable) and ~8 (maximum entropy for byte strings).
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// isSequential checks if a string consists of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	// If more than 70% of characters are sequential, it's weak
	return float64(sequential) > float64(len(s))*0.7
}
