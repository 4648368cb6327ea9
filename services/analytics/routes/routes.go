// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the analytics HTTP surface onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
	"github.com/jfbm74/glpi-analytics/services/analytics/engine"
	"github.com/jfbm74/glpi-analytics/services/analytics/handlers"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
	"github.com/jfbm74/glpi-analytics/services/analytics/monitor"
	"github.com/jfbm74/glpi-analytics/services/analytics/prompts"
	"github.com/jfbm74/glpi-analytics/services/llm"
)

// Deps bundles everything the handlers need.
type Deps struct {
	Orchestrator *engine.Orchestrator
	Ledger       *history.Ledger
	Monitor      *monitor.Monitor
	Prompts      *prompts.Builder
	Invoker      llm.Client
	Config       config.Config
}

// RegisterValidators installs the custom binding validators used by the
// request types. Call once at startup, before the first bind.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("analysistype", func(fl validator.FieldLevel) bool {
			return datatypes.AnalysisType(fl.Field().String()).Valid()
		})
	}
}

// SetupRoutes registers every endpoint of the analytics service.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HandleLiveness())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ai := router.Group("/api/ai")
	{
		ai.POST("/analyze", handlers.HandleAnalyze(deps.Orchestrator))
		ai.POST("/jobs/:fingerprint/cancel", handlers.HandleCancelJob(deps.Orchestrator))

		ai.GET("/status", handlers.HandleStatus(deps.Monitor, deps.Orchestrator))
		ai.GET("/health", handlers.HandleHealth(deps.Monitor))
		ai.GET("/history", handlers.HandleHistory(deps.Ledger))
		ai.GET("/trends", handlers.HandleTrends(deps.Ledger))
		ai.GET("/available-types", handlers.HandleAvailableTypes(deps.Prompts))
		ai.GET("/model-info", handlers.HandleModelInfo(deps.Invoker, deps.Config))
		ai.GET("/test-connection", handlers.HandleTestConnection(deps.Orchestrator))

		ai.DELETE("/cache", handlers.HandleCacheClear(deps.Orchestrator))
		ai.DELETE("/cache/:fingerprint", handlers.HandleCacheInvalidate(deps.Orchestrator))
	}
}
