// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateFingerprint(t *testing.T) {
	valid := strings.Repeat("ab12", 16)
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid digest", valid, false},
		{"empty", "", true},
		{"too short", valid[:32], true},
		{"uppercase hex", strings.ToUpper(valid), true},
		{"non-hex", strings.Repeat("zz12", 16), true},
		{"path traversal", "../" + valid[:61], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFingerprint(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFingerprint(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "printer incidents", "printer incidents", false},
		{"trims", "  focus  ", "focus", false},
		{"keeps newlines and tabs", "a\n\tb", "a\n\tb", false},
		{"strips control chars", "a\x00b\x1bc", "abc", false},
		{"too long", strings.Repeat("x", MaxFocusLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeText(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeTexts(t *testing.T) {
	got, err := SanitizeTexts([]string{" q1 ", "", "  ", "q2"})
	if err != nil {
		t.Fatalf("SanitizeTexts() error = %v", err)
	}
	if len(got) != 2 || got[0] != "q1" || got[1] != "q2" {
		t.Errorf("SanitizeTexts() = %v", got)
	}

	if _, err := SanitizeTexts([]string{strings.Repeat("x", MaxFocusLength+1)}); err == nil {
		t.Error("SanitizeTexts() accepted oversized entry")
	}
}

func TestBoundedInt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty uses default", "", 50},
		{"garbage uses default", "abc", 50},
		{"in range", "25", 25},
		{"clamped low", "-3", 1},
		{"clamped high", "9999", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BoundedInt(tt.raw, 50, 1, 100); got != tt.want {
				t.Errorf("BoundedInt(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}
