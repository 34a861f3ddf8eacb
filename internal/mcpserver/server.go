// Package mcpserver exposes prompt optimization as Model Context Protocol
// tools so that MCP-capable agents can polish prompts before sending them.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/version"
)

const (
	ToolOptimize  = "optimize_prompt"
	ToolListModes = "list_modes"
)

// Optimizer runs one optimization request end to end.
type Optimizer interface {
	Optimize(ctx context.Context, req polish.Request) polish.Envelope
}

// OptimizeInput is the optimize_prompt argument object.
type OptimizeInput struct {
	Text              string `json:"text" jsonschema:"the prompt to optimize"`
	Mode              string `json:"mode,omitempty" jsonschema:"optimization mode, see list_modes; defaults to concise"`
	CustomInstruction string `json:"custom_instruction,omitempty" jsonschema:"extra constraints for the rewrite"`
	DeepPolish        bool   `json:"deep_polish,omitempty" jsonschema:"use the slower multi-step strategy"`
}

// OptimizeOutput is the optimize_prompt structured result.
type OptimizeOutput struct {
	Success bool     `json:"success"`
	Type    string   `json:"type"`
	Data    []string `json:"data"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
}

// ListModesOutput is the list_modes structured result.
type ListModesOutput struct {
	Modes   []string `json:"modes"`
	Default string   `json:"default"`
}

// New builds an MCP server with the optimization tools registered.
func New(o Optimizer, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "promptpolish", Version: version.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolOptimize,
		Description: "Rewrite a prompt for clarity and effect in the requested mode.",
	}, optimizeHandler(o, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListModes,
		Description: "List the optimization modes accepted by optimize_prompt.",
	}, listModes)

	return server
}

// Run serves the tools over stdio until ctx is done or the client hangs up.
func Run(ctx context.Context, o Optimizer, logger *zap.Logger) error {
	if err := New(o, logger).Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func optimizeHandler(o Optimizer, logger *zap.Logger) mcp.ToolHandlerFor[OptimizeInput, OptimizeOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in OptimizeInput) (*mcp.CallToolResult, OptimizeOutput, error) {
		env := o.Optimize(ctx, polish.Request{
			InputText:         in.Text,
			Mode:              polish.Mode(in.Mode),
			CustomInstruction: in.CustomInstruction,
			DeepPolish:        in.DeepPolish,
		})
		out := OptimizeOutput{
			Success: env.Success,
			Type:    string(env.Type),
			Data:    env.Data.Items(),
			Error:   env.Error,
			Code:    string(env.Code),
		}
		if out.Data == nil {
			out.Data = []string{}
		}

		if !env.Success {
			logger.Debug("mcp optimize failed", zap.String("code", out.Code), zap.String("error", out.Error))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: env.Error}},
			}, out, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: env.Data.First()}},
		}, out, nil
	}
}

func listModes(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, ListModesOutput, error) {
	modes := polish.Modes()
	out := ListModesOutput{Modes: make([]string, 0, len(modes)), Default: string(polish.DefaultMode)}
	for _, m := range modes {
		out.Modes = append(out.Modes, string(m))
	}
	return nil, out, nil
}
