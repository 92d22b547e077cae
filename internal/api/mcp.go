package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/journal"
	"github.com/prepbrain/prepdeck/internal/state"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Controller *dashboard.Controller
	Journal    *journal.Store // optional; without it the journal resource is not registered
	Version    string
}

// NewMCPServer exposes dashboard commands as MCP tools so an assistant can
// operate the kitchen console.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"prepdeck",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prepdeck operates a Prep Brain kitchen assistant: service status, bot and Ollama control, knowledge and recipes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Fetch bot, Ollama and telemetry status from the control plane."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("get_logs",
			mcp.WithDescription("Return the newest bot log lines."),
			mcp.WithNumber("limit", mcp.Description("Maximum lines to return (default 20)")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpLogs(deps),
	)

	s.AddTool(
		mcp.NewTool("control_bot",
			mcp.WithDescription("Start, stop or restart the Telegram bot."),
			mcp.WithString("action", mcp.Required(), mcp.Enum("start", "stop", "restart")),
		),
		mcpControl(deps, "bot"),
	)

	s.AddTool(
		mcp.NewTool("control_ollama",
			mcp.WithDescription("Start or stop the local Ollama model server."),
			mcp.WithString("action", mcp.Required(), mcp.Enum("start", "stop")),
		),
		mcpControl(deps, "ollama"),
	)

	s.AddTool(
		mcp.NewTool("execute_sequence",
			mcp.WithDescription("Start Ollama, restart the bot and refresh status and logs. Stops at the first failing step."),
		),
		mcpSequence(deps),
	)

	s.AddTool(
		mcp.NewTool("emergency_stop",
			mcp.WithDescription("Stop the bot immediately. The stop request runs in the background."),
			mcp.WithDestructiveHintAnnotation(true),
		),
		mcpEmergencyStop(deps),
	)

	s.AddTool(
		mcp.NewTool("list_knowledge",
			mcp.WithDescription("List ingested knowledge sources with their status and text profile."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpListKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_knowledge",
			mcp.WithDescription("Enable or disable a knowledge source for retrieval."),
			mcp.WithString("id", mcp.Description("Knowledge source id"), mcp.Required()),
			mcp.WithBoolean("active", mcp.Description("true to enable, false to disable"), mcp.Required()),
		),
		mcpToggleKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("list_recipes",
			mcp.WithDescription("List active recipes with on-hand, par level and estimated cost."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpListRecipes(deps),
	)

	s.AddTool(
		mcp.NewTool("test_brain",
			mcp.WithDescription("Ask the kitchen assistant a question and return its answer."),
			mcp.WithString("prompt", mcp.Required()),
		),
		mcpTestBrain(deps),
	)

	s.AddTool(
		mcp.NewTool("draft_vendor_email",
			mcp.WithDescription("Draft an order email to a vendor."),
			mcp.WithNumber("vendor_id", mcp.Required()),
			mcp.WithString("context", mcp.Description("What to order or ask"), mcp.Required()),
		),
		mcpDraftEmail(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"prepdeck://status",
			"Console Status",
			mcp.WithResourceDescription("Last status snapshot and banner held by the console"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	if deps.Journal != nil {
		s.AddResource(
			mcp.NewResource(
				"prepdeck://journal",
				"Action Journal",
				mcp.WithResourceDescription("Last 20 operator commands and their outcome"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceJournal(deps),
		)
	}

	return s
}

// outcome renders a command result. Commands write their outcome into the
// banner, so that is what the caller sees.
func outcome(c *dashboard.Controller, err error) *mcp.CallToolResult {
	text := c.Snapshot().Banner.Text
	if err != nil {
		if text == "" {
			text = dashboard.Message(err)
		}
		return mcpError(text)
	}
	return mcpText(text)
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := deps.Controller
		if err := c.LoadStatus(ctx); err != nil {
			return outcome(c, err), nil
		}
		return mcpJSON(c.Snapshot().Status), nil
	}
}

func mcpLogs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		c := deps.Controller
		if err := c.LoadLogs(ctx); err != nil {
			return outcome(c, err), nil
		}
		logs := c.Snapshot().Logs
		if len(logs) > limit {
			logs = logs[:limit]
		}
		return mcpJSON(logs), nil
	}
}

func mcpControl(deps MCPDeps, target string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := req.RequireString("action")
		if err != nil {
			return mcpError("action is required"), nil
		}
		c := deps.Controller
		if target == "bot" {
			return outcome(c, c.ControlBot(ctx, action)), nil
		}
		return outcome(c, c.ControlOllama(ctx, action)), nil
	}
}

func mcpSequence(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := deps.Controller
		return outcome(c, c.ExecuteSequence(ctx)), nil
	}
}

func mcpEmergencyStop(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Controller.EmergencyStop(ctx)
		return mcpText("Emergency stop issued. The bot stop request is running in the background."), nil
	}
}

func mcpListKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := deps.Controller
		if err := c.LoadKnowledge(ctx); err != nil {
			return outcome(c, err), nil
		}

		type sourceSummary struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Active  bool   `json:"active"`
			Chunks  int    `json:"chunks"`
			Profile string `json:"profile"`
		}
		sources := c.Snapshot().Knowledge
		out := make([]sourceSummary, len(sources))
		for i, k := range sources {
			out[i] = sourceSummary{
				ID:      k.ID,
				Title:   k.Title,
				Active:  k.Active(),
				Chunks:  k.ChunkCount,
				Profile: k.TextProfileLabel,
			}
		}
		return mcpJSON(out), nil
	}
}

func mcpToggleKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		active, err := req.RequireBool("active")
		if err != nil {
			return mcpError("active is required"), nil
		}
		c := deps.Controller
		// The controller checks CanToggle against the loaded list.
		if err := c.LoadKnowledge(ctx); err != nil {
			return outcome(c, err), nil
		}
		return outcome(c, c.ToggleKnowledge(ctx, id, active)), nil
	}
}

func mcpListRecipes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := deps.Controller
		if err := c.LoadRecipes(ctx); err != nil {
			return outcome(c, err), nil
		}
		return mcpJSON(c.Snapshot().Recipes), nil
	}
}

func mcpTestBrain(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt := req.GetString("prompt", "")
		c := deps.Controller
		answer, err := c.TestBrain(ctx, prompt)
		if err != nil {
			return outcome(c, err), nil
		}
		return mcpText(answer), nil
	}
}

func mcpDraftEmail(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var vendorID *int64
		if id := int64(req.GetInt("vendor_id", 0)); id > 0 {
			vendorID = &id
		}
		c := deps.Controller
		draft, err := c.DraftEmail(ctx, vendorID, req.GetString("context", ""))
		if err != nil {
			return outcome(c, err), nil
		}
		return mcpJSON(draft), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := deps.Controller.Snapshot()
		payload := struct {
			Status     any          `json:"status"`
			Banner     state.Banner `json:"banner"`
			Processing bool         `json:"processing"`
			LoadedAt   *time.Time   `json:"loaded_at,omitempty"`
		}{
			Status:     snap.Status,
			Banner:     snap.Banner,
			Processing: snap.Processing,
		}
		if at, ok := snap.LastLoaded[state.DomainStatus]; ok {
			payload.LoadedAt = &at
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceJournal(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Journal.Recent(ctx, journal.Query{Limit: 20})
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}

		type entrySummary struct {
			At      string `json:"at"`
			Command string `json:"command"`
			Kind    string `json:"kind"`
			OK      bool   `json:"ok"`
			Message string `json:"message,omitempty"`
		}
		out := make([]entrySummary, len(entries))
		for i, e := range entries {
			out[i] = entrySummary{
				At:      e.CreatedAt.Format(time.RFC3339),
				Command: e.Command,
				Kind:    e.Kind,
				OK:      e.OK,
				Message: e.Message,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal journal: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
