// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"

	"github.com/jfbm74/glpi-analytics/services/llm"
)

var (
	// ErrInvalidRequest marks requests rejected before any work starts.
	ErrInvalidRequest = errors.New("invalid analysis request")

	// ErrAdmissionTimeout marks requests that gave up waiting for a
	// concurrency slot or for a shared in-flight job.
	ErrAdmissionTimeout = errors.New("timed out waiting for an analysis slot")

	// ErrCancelled marks requests abandoned by their caller or attached
	// to a job that was cancelled.
	ErrCancelled = errors.New("analysis cancelled")
)

// ErrorClass maps an error to the stable class string recorded in
// history and returned on the wire.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrAdmissionTimeout):
		return "admission_timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	}
	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		return string(upstream.Class)
	}
	return string(llm.FailureUnknown)
}
