// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the analytics API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jfbm74/glpi-analytics/pkg/validation"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/engine"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
	"github.com/jfbm74/glpi-analytics/services/analytics/monitor"
)

// HandleStatus returns the operational overview plus cache counters.
func HandleStatus(mon *monitor.Monitor, orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := mon.Status(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status_report": report,
			"cache":         orc.CacheStats(),
		})
	}
}

// HandleTrends reports per-day statistics over a trailing window.
func HandleTrends(ledger *history.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := validation.BoundedInt(c.Query("days"), 7, 1, 90)
		c.JSON(http.StatusOK, ledger.Trends(days))
	}
}

// HandleHealth runs the full health check. Critical systems answer 503
// so load balancers stop routing to them.
func HandleHealth(mon *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := mon.Check(c.Request.Context())
		status := http.StatusOK
		if report.Status == datatypes.HealthCritical {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// HandleLiveness is the bare process-is-up probe.
func HandleLiveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "glpi-analytics"})
	}
}
