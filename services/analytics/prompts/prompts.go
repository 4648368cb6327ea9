// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompts renders analysis requests into the strategic prompts
// sent to the LLM backend. Each analysis type has a fixed preface that
// frames the model as the clinic's IT director and lists the sections
// the report must cover; the dashboard's metrics snapshot is appended as
// structured JSON.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/jfbm74/glpi-analytics/services/analytics/datatypes"
)

const promptSkeleton = `{{.preface}}

Context: Clinica Bonsana is a clinic specialized in fracture care where
IT service continuity directly affects patient care. Compare findings
against healthcare industry benchmarks where relevant.

DASHBOARD METRICS:
{{.metrics}}
{{.focus}}{{.questions}}
Provide an exhaustive, structured analysis in Markdown, following
exactly the requested sections. Close with a prioritized action plan
(0-30 days, 1-6 months, 6-12 months).`

var prefaces = map[datatypes.AnalysisType]string{
	datatypes.AnalysisComprehensive: `Act as the IT Director of Clinica Bonsana and run a full strategic
review of the support operation. Cover: current KPI performance
(resolution rate, SLA compliance, CSAT), distribution of incidents by
type, priority and state, workload balance across technicians,
temporal patterns and anomalies, operational risks for clinical
continuity, and concrete improvement opportunities.`,

	datatypes.AnalysisQuick: `Act as the IT Director and deliver a fast, concise read of the main
KPIs. Limit yourself to: the three strongest signals in the data, the
three most urgent problems, and one immediate recommendation per
problem.`,

	datatypes.AnalysisTechnician: `Act as the IT Director and analyze the individual performance of each
technician. Cover: ticket volume and resolution rate per technician,
workload imbalances, specialization patterns by category, and coaching
or redistribution recommendations.`,

	datatypes.AnalysisSLA: `Act as the IT Director of a critical clinical environment and analyze
SLA compliance. Cover: overall compliance against the 98% healthcare
benchmark, breach patterns by priority and category, the operational
impact of each breach class, and corrective measures.`,

	datatypes.AnalysisTrends: `Act as the IT Director and analyze temporal trends in the support
data. Cover: volume evolution, seasonality and peak periods, leading
indicators of demand growth, and a capacity forecast for the next two
quarters.`,

	datatypes.AnalysisCost: `Act as the IT Director and analyze cost optimization opportunities.
Cover: cost per ticket by category and technician, automation
candidates among repetitive incidents, tooling or training investments
with clear payback, and quantified savings estimates.`,

	datatypes.AnalysisCustom: `Act as the IT Director of Clinica Bonsana and analyze the support
operation with the specific focus requested below.`,
}

// Builder renders AnalysisRequests into complete prompts.
type Builder struct {
	template prompts.PromptTemplate
}

// NewBuilder constructs a Builder with the built-in templates.
func NewBuilder() *Builder {
	return &Builder{
		template: prompts.NewPromptTemplate(promptSkeleton,
			[]string{"preface", "metrics", "focus", "questions"}),
	}
}

// Build renders the prompt for req. The metrics snapshot is embedded as
// indented JSON so the model sees exactly what the dashboard shows.
func (b *Builder) Build(req datatypes.AnalysisRequest) (string, error) {
	preface, ok := prefaces[req.Type]
	if !ok {
		return "", fmt.Errorf("no prompt template for analysis type %q", req.Type)
	}

	metricsJSON, err := json.MarshalIndent(req.Metrics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metrics snapshot: %w", err)
	}

	focus := ""
	if f := strings.TrimSpace(req.CustomFocus); f != "" {
		focus = "\nSPECIFIC FOCUS:\n" + f + "\n"
	}

	questions := ""
	if len(req.SpecificQuestions) > 0 {
		var sb strings.Builder
		sb.WriteString("\nSPECIFIC QUESTIONS TO ANSWER:\n")
		for i, q := range req.SpecificQuestions {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(q))
		}
		questions = sb.String()
	}

	rendered, err := b.template.Format(map[string]any{
		"preface":   preface,
		"metrics":   string(metricsJSON),
		"focus":     focus,
		"questions": questions,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return rendered, nil
}

// Available returns the supported analysis types with their
// descriptions, for the available-types endpoint.
func (b *Builder) Available() map[datatypes.AnalysisType]string {
	out := make(map[datatypes.AnalysisType]string, len(prefaces))
	for _, t := range datatypes.AnalysisTypes() {
		out[t] = t.Description()
	}
	return out
}
