// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

func baseRequest() datatypes.AnalysisRequest {
	return datatypes.AnalysisRequest{
		Type: datatypes.AnalysisComprehensive,
		Metrics: datatypes.MetricsSnapshot{
			Timestamp:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			TotalTickets:   340,
			ResolutionRate: 92.4,
			SLACompliance:  97.1,
			AverageCSAT:    4.2,
			Distributions: map[string]map[string]int{
				"priority": {"high": 20, "low": 320},
			},
			DataQuality: map[string]float64{"completeness": 0.98},
		},
	}
}

func TestFingerprintIgnoresTimestamp(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Metrics.Timestamp = b.Metrics.Timestamp.Add(48 * time.Hour)

	fpA, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint(a) error = %v", err)
	}
	fpB, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("Fingerprint(b) error = %v", err)
	}
	if fpA != fpB {
		t.Errorf("fingerprints differ across timestamps: %s vs %s", fpA, fpB)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base, err := Fingerprint(baseRequest())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		mutate   func(*datatypes.AnalysisRequest)
		wantSame bool
	}{
		{"different type", func(r *datatypes.AnalysisRequest) { r.Type = datatypes.AnalysisQuick }, false},
		{"different ticket count", func(r *datatypes.AnalysisRequest) { r.Metrics.TotalTickets++ }, false},
		{"different distribution", func(r *datatypes.AnalysisRequest) { r.Metrics.Distributions["priority"]["high"] = 21 }, false},
		{"added focus", func(r *datatypes.AnalysisRequest) { r.CustomFocus = "printers" }, false},
		{"sub-micro float jitter", func(r *datatypes.AnalysisRequest) { r.Metrics.ResolutionRate += 1e-9 }, true},
		{"whitespace-only focus", func(r *datatypes.AnalysisRequest) { r.CustomFocus = "   " }, true},
		{"blank questions dropped", func(r *datatypes.AnalysisRequest) { r.SpecificQuestions = []string{"", "  "} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			fp, err := Fingerprint(req)
			if err != nil {
				t.Fatalf("Fingerprint() error = %v", err)
			}
			if (fp == base) != tt.wantSame {
				t.Errorf("fingerprint equality = %v, want %v", fp == base, tt.wantSame)
			}
		})
	}
}

func TestFingerprintValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*datatypes.AnalysisRequest)
	}{
		{"unknown type", func(r *datatypes.AnalysisRequest) { r.Type = "psychic" }},
		{"custom without focus", func(r *datatypes.AnalysisRequest) {
			r.Type = datatypes.AnalysisCustom
			r.CustomFocus = "  "
		}},
		{"negative tickets", func(r *datatypes.AnalysisRequest) { r.Metrics.TotalTickets = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := Fingerprint(req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Fingerprint() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid", ErrInvalidRequest, "invalid_request"},
		{"admission", ErrAdmissionTimeout, "admission_timeout"},
		{"cancelled", ErrCancelled, "cancelled"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorClass(tt.err); got != tt.want {
				t.Errorf("ErrorClass() = %q, want %q", got, tt.want)
			}
		})
	}
}
