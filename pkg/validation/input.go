// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for
// user-supplied values that end up in prompts, cache keys, or storage
// keys. Validating here keeps prompt text printable and prevents
// malformed identifiers from reaching the cache layer.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxFocusLength caps user-supplied prompt text. Anything longer is
// almost certainly a paste accident and would blow up token spend.
const MaxFocusLength = 2000

// fingerprintPattern matches a hex-encoded SHA-256 digest.
var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidateFingerprint checks that s is a well-formed cache fingerprint.
func ValidateFingerprint(s string) error {
	if s == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if !fingerprintPattern.MatchString(s) {
		return fmt.Errorf("invalid fingerprint format: want 64 lowercase hex characters, got %d characters", len(s))
	}
	return nil
}

// SanitizeText trims s, strips control characters (newlines and tabs
// survive), and enforces MaxFocusLength. Returns an error rather than
// truncating so the caller learns their input was rejected.
func SanitizeText(s string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if len(cleaned) > MaxFocusLength {
		return "", fmt.Errorf("text too long: %d characters, maximum %d", len(cleaned), MaxFocusLength)
	}
	return cleaned, nil
}

// SanitizeTexts applies SanitizeText to each value, dropping entries
// that end up empty. Returns an error naming the first offending index.
func SanitizeTexts(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, v := range values {
		cleaned, err := SanitizeText(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out, nil
}

// BoundedInt parses raw as an integer clamped to [min, max], falling
// back to def when raw is empty or unparseable.
func BoundedInt(raw string, def, min, max int) int {
	if raw == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
