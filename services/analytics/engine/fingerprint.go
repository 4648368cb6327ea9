// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

// canonicalRequest is the normalized form hashed into a fingerprint.
// The snapshot timestamp is deliberately absent: identical metrics taken
// at different moments must collapse to one cache key. Map keys are
// sorted by encoding/json, so two semantically equal requests always
// serialize to the same bytes.
type canonicalRequest struct {
	Type         datatypes.AnalysisType    `json:"type"`
	TotalTickets int                       `json:"total_tickets"`
	Resolution   float64                   `json:"resolution_rate"`
	SLA          float64                   `json:"sla_compliance"`
	CSAT         float64                   `json:"average_csat"`
	Distribution map[string]map[string]int `json:"distributions,omitempty"`
	DataQuality  map[string]float64        `json:"data_quality,omitempty"`
	Focus        string                    `json:"custom_focus,omitempty"`
	Questions    []string                  `json:"questions,omitempty"`
}

// Fingerprint validates req and derives its deterministic cache key: the
// hex SHA-256 of the canonical request serialization. Floats are rounded
// to six decimals so formatting jitter upstream does not split keys.
func Fingerprint(req datatypes.AnalysisRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	canon := canonicalRequest{
		Type:         req.Type,
		TotalTickets: req.Metrics.TotalTickets,
		Resolution:   round6(req.Metrics.ResolutionRate),
		SLA:          round6(req.Metrics.SLACompliance),
		CSAT:         round6(req.Metrics.AverageCSAT),
		Distribution: req.Metrics.Distributions,
		Focus:        strings.TrimSpace(req.CustomFocus),
		Questions:    normalizeQuestions(req.SpecificQuestions),
	}
	if len(req.Metrics.DataQuality) > 0 {
		canon.DataQuality = make(map[string]float64, len(req.Metrics.DataQuality))
		for k, v := range req.Metrics.DataQuality {
			canon.DataQuality[k] = round6(v)
		}
	}

	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("serialize request for fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func validateRequest(req datatypes.AnalysisRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown analysis type %q", ErrInvalidRequest, req.Type)
	}
	if req.Type == datatypes.AnalysisCustom && strings.TrimSpace(req.CustomFocus) == "" {
		return fmt.Errorf("%w: custom analysis requires a custom_focus", ErrInvalidRequest)
	}
	if req.Metrics.TotalTickets < 0 {
		return fmt.Errorf("%w: total_tickets cannot be negative", ErrInvalidRequest)
	}
	return nil
}

func normalizeQuestions(qs []string) []string {
	if len(qs) == 0 {
		return nil
	}
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
