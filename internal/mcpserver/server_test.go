package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

type stubOptimizer struct {
	got polish.Request
	env polish.Envelope
}

func (s *stubOptimizer) Optimize(_ context.Context, req polish.Request) polish.Envelope {
	s.got = req
	return s.env
}

func connect(t *testing.T, o Optimizer) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()

	ss, err := New(o, nil).Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() }) //nolint:errcheck

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() }) //nolint:errcheck
	return cs
}

func decode[T any](t *testing.T, v any) T {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestTools_Listed(t *testing.T) {
	t.Parallel()

	cs := connect(t, &stubOptimizer{})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolOptimize, ToolListModes}, names)
}

func TestOptimize_Success(t *testing.T) {
	t.Parallel()

	stub := &stubOptimizer{env: polish.Suggestion(polish.Text("Summarize the report in three bullets."))}
	cs := connect(t, stub)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolOptimize,
		Arguments: map[string]any{
			"text":               "summarize report pls",
			"mode":               "formal",
			"custom_instruction": "max 20 words",
			"deep_polish":        true,
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Summarize the report in three bullets.", text.Text)

	out := decode[OptimizeOutput](t, res.StructuredContent)
	assert.True(t, out.Success)
	assert.Equal(t, "suggestion", out.Type)
	assert.Equal(t, []string{"Summarize the report in three bullets."}, out.Data)

	assert.Equal(t, polish.Request{
		InputText:         "summarize report pls",
		Mode:              polish.ModeFormal,
		CustomInstruction: "max 20 words",
		DeepPolish:        true,
	}, stub.got)
}

func TestOptimize_FailureIsToolError(t *testing.T) {
	t.Parallel()

	stub := &stubOptimizer{env: polish.Failure(polish.KindRateLimited, "Rate limit exceeded. Please try again later.")}
	cs := connect(t, stub)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolOptimize,
		Arguments: map[string]any{"text": "x"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	out := decode[OptimizeOutput](t, res.StructuredContent)
	assert.False(t, out.Success)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", out.Error)
	assert.Equal(t, string(polish.KindRateLimited), out.Code)
	assert.Empty(t, out.Data)
}

func TestListModes(t *testing.T) {
	t.Parallel()

	cs := connect(t, &stubOptimizer{})
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolListModes, Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	out := decode[ListModesOutput](t, res.StructuredContent)
	assert.Equal(t, "concise", out.Default)
	assert.Len(t, out.Modes, len(polish.Modes()))
	assert.Contains(t, out.Modes, "analyze_comparison")
}
