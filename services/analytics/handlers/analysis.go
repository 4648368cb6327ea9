// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jfbm74/glpi-analytics/pkg/validation"
	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/engine"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
	"github.com/jfbm74/glpi-analytics/services/analytics/prompts"
	"github.com/jfbm74/glpi-analytics/services/llm"
)

var analysisTracer = otel.Tracer("bonsana.analytics.handlers")

// HandleAnalyze runs one analysis request through the orchestrator.
func HandleAnalyze(orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := analysisTracer.Start(c.Request.Context(), "HandleAnalyze")
		defer span.End()

		var req datatypes.AnalysisRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the analysis request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":       "invalid request body",
				"error_class": "invalid_request",
			})
			return
		}

		focus, err := validation.SanitizeText(req.CustomFocus)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_class": "invalid_request"})
			return
		}
		req.CustomFocus = focus
		questions, err := validation.SanitizeTexts(req.SpecificQuestions)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_class": "invalid_request"})
			return
		}
		req.SpecificQuestions = questions

		result, err := orc.Submit(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, class := mapAnalysisError(err)
			if status == http.StatusServiceUnavailable {
				c.Header("Retry-After", "60")
			}
			c.JSON(status, gin.H{"error": err.Error(), "error_class": class})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

// mapAnalysisError translates orchestration errors into HTTP status
// codes plus the stable error class string clients key off of.
func mapAnalysisError(err error) (int, string) {
	class := engine.ErrorClass(err)
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, class
	case errors.Is(err, engine.ErrAdmissionTimeout):
		return http.StatusServiceUnavailable, class
	case errors.Is(err, engine.ErrCancelled):
		return http.StatusConflict, class
	}

	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Class == llm.FailureQuota {
			return http.StatusTooManyRequests, class
		}
		return http.StatusBadGateway, class
	}
	return http.StatusInternalServerError, class
}

// HandleCancelJob marks an in-flight job as cancelled.
func HandleCancelJob(orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := c.Param("fingerprint")
		if err := validation.ValidateFingerprint(fingerprint); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !orc.Cancel(fingerprint) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no in-flight job for that fingerprint"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fingerprint": fingerprint})
	}
}

// HandleHistory returns recent ledger records, newest first.
func HandleHistory(ledger *history.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := validation.BoundedInt(c.Query("limit"), 50, 1, 1000)
		records := ledger.Recent(limit)
		c.JSON(http.StatusOK, gin.H{
			"count":   len(records),
			"history": records,
		})
	}
}

// HandleAvailableTypes lists the supported analysis types.
func HandleAvailableTypes(builder *prompts.Builder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"available_types": builder.Available()})
	}
}

// HandleModelInfo describes the configured backend and its parameters.
func HandleModelInfo(client llm.Client, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		model := client.Model()
		c.JSON(http.StatusOK, gin.H{
			"backend": cfg.LLMBackend,
			"model":   model,
			"generation": gin.H{
				"temperature":       cfg.Temperature,
				"top_p":             cfg.TopP,
				"top_k":             cfg.TopK,
				"max_output_tokens": cfg.MaxOutputTokens,
			},
			"cost_per_token": cfg.CostPerToken[model],
		})
	}
}

// HandleTestConnection probes the backend with a minimal prompt.
func HandleTestConnection(orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := analysisTracer.Start(c.Request.Context(), "HandleTestConnection")
		defer span.End()

		if err := orc.TestConnection(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadGateway, gin.H{
				"success":     false,
				"error":       err.Error(),
				"error_class": string(llm.ClassOf(err)),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "model": orc.Model()})
	}
}

// HandleCacheClear drops every cached result.
func HandleCacheClear(orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cleared := orc.ClearCache()
		slog.Info("result cache cleared", "entries", cleared)
		c.JSON(http.StatusOK, gin.H{"success": true, "cleared": cleared})
	}
}

// HandleCacheInvalidate drops one cached result by fingerprint.
func HandleCacheInvalidate(orc *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := c.Param("fingerprint")
		if err := validation.ValidateFingerprint(fingerprint); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !orc.InvalidateCached(fingerprint) {
			c.JSON(http.StatusNotFound, gin.H{"error": "fingerprint not cached"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fingerprint": fingerprint})
	}
}
