// Package mcp exposes the pipeline over the Model Context Protocol so other
// agents can request a run and drill into its results.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"nightwatch-agent/src/contracts"
)

// Runner executes one pipeline run per session. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Execute(ctx context.Context, sessionID string) (*contracts.AnalysisReport, error)
}

// Server is the MCP server for nightwatch.
type Server struct {
	mcpServer *server.MCPServer
	runner    Runner
	store     ResultStore
}

// NewServer creates the MCP server over a ready pipeline.
func NewServer(runner Runner) *Server {
	s := server.NewMCPServer(
		"nightwatch",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		runner:    runner,
		store:     NewInMemoryStore(),
	}
	srv.registerTools()
	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	analyzeTool := mcp.NewTool("analyze_errors",
		mcp.WithDescription("Run the nightly error analysis pipeline and return a manifest of the results. Each item carries its root cause and confidence; use get_item_analysis to drill into one item."),
		mcp.WithString("session_id",
			mcp.Description("Session identifier; generated when omitted"),
		),
	)

	itemTool := mcp.NewTool("get_item_analysis",
		mcp.WithDescription("Get the full analysis for one item from a previous analyze_errors run."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID from the analyze_errors manifest"),
		),
		mcp.WithString("item_id",
			mcp.Required(),
			mcp.Description("Item ID from the analyze_errors manifest"),
		),
	)

	s.mcpServer.AddTool(analyzeTool, s.handleAnalyzeErrors)
	s.mcpServer.AddTool(itemTool, s.handleGetItemAnalysis)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// Manifest is the lightweight analyze_errors response.
type Manifest struct {
	RunID     string         `json:"run_id"`
	SessionID string         `json:"session_id"`
	Items     []ManifestItem `json:"items"`
	Patterns  int            `json:"patterns"`
	Analyzed  int            `json:"analyzed"`
	Fallback  bool           `json:"fallback,omitempty"`
}

// ManifestItem summarizes one item; the full analysis stays in the store.
type ManifestItem struct {
	ItemID     string `json:"item_id"`
	Service    string `json:"service"`
	Message    string `json:"message"`
	RootCause  string `json:"root_cause,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// handleAnalyzeErrors handles the analyze_errors tool call.
func (s *Server) handleAnalyzeErrors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		sessionID = "mcp-" + uuid.NewString()
	}

	report, err := s.runner.Execute(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pipeline failed: %v", err)), nil
	}
	s.store.Store(report)

	jsonBytes, err := json.Marshal(ToManifest(report))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal manifest: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleGetItemAnalysis handles the get_item_analysis tool call.
func (s *Server) handleGetItemAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}
	itemID := request.GetString("item_id", "")
	if itemID == "" {
		return mcp.NewToolResultError("item_id parameter is required"), nil
	}

	item, found := s.store.GetItem(runID, itemID)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("item not found: run_id=%s, item_id=%s", runID, itemID)), nil
	}

	jsonBytes, err := json.Marshal(item)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal item: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ToManifest reduces a report to its manifest.
func ToManifest(report *contracts.AnalysisReport) Manifest {
	m := Manifest{
		RunID:     report.RunID,
		SessionID: report.SessionID,
		Patterns:  len(report.Patterns),
		Analyzed:  report.AnalyzedCount(),
		Fallback:  report.Fallback,
	}
	for _, item := range report.Items {
		mi := ManifestItem{
			ItemID:  item.Item.ID,
			Service: item.Item.Service,
			Message: item.Item.Message,
			Skipped: item.Skipped,
		}
		if item.Analysis != nil {
			mi.RootCause = item.Analysis.RootCause
			mi.Confidence = string(item.Analysis.Confidence)
		}
		m.Items = append(m.Items, mi)
	}
	return m
}
