// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"
	"time"
)

func TestAnalysisTypeValid(t *testing.T) {
	for _, typ := range AnalysisTypes() {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
		if typ.Description() == "Unknown analysis type" {
			t.Errorf("%s is missing a description", typ)
		}
	}
	for _, typ := range []AnalysisType{"", "Comprehensive", "full", "psychic"} {
		if typ.Valid() {
			t.Errorf("%q should be invalid", typ)
		}
	}
}

func TestHistoryRecordDay(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	rec := HistoryRecord{StartedAt: time.Date(2025, 6, 14, 23, 30, 0, 0, loc)}
	if got := rec.Day(); got != "2025-06-15" {
		t.Errorf("Day() = %q, want 2025-06-15", got)
	}
}

func TestHistoryRecordTotalTokens(t *testing.T) {
	rec := HistoryRecord{PromptTokens: 120, ResponseTokens: 80}
	if rec.TotalTokens() != 200 {
		t.Errorf("TotalTokens() = %d, want 200", rec.TotalTokens())
	}
}
