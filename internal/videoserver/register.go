// Package videoserver registers the video tools on an MCP server.
package videoserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/toolutil"
)

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 2

// RegisterTools registers video_load and video_ask on server.
func RegisterTools(server *mcp.Server, svc *engine.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_load",
		Description: "Load a YouTube video: fetch its captions, split them into timed sections and produce a structured analysis (summary, main topics with timestamps, key concepts, timeline). Returns metadata, transcript, analysis, language and caption type. Must be called before video_ask.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: ptr(true)},
	}, loadHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_ask",
		Description: "Ask a question about a video loaded with video_load. Questions may name a moment (\"what happens at 12:30\", \"around 5 minutes\") or a topic; the answer is grounded in the matching transcript sections.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, askHandler(svc))
}

type (
	loadFunc = func(context.Context, *mcp.CallToolRequest, toolutil.LoadInput) (*mcp.CallToolResult, toolutil.LoadOutput, error)
	askFunc  = func(context.Context, *mcp.CallToolRequest, toolutil.ChatInput) (*mcp.CallToolResult, toolutil.ChatOutput, error)
)

func loadHandler(svc *engine.Service) loadFunc {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input toolutil.LoadInput) (*mcp.CallToolResult, toolutil.LoadOutput, error) {
		if input.URL == "" {
			return nil, toolutil.LoadOutput{}, fmt.Errorf("url is required")
		}
		res, err := svc.LoadVideo(ctx, input.URL)
		if err != nil {
			return nil, toolutil.LoadOutput{}, toolError(err)
		}
		return nil, toolutil.NewLoadOutput(res), nil
	}
}

func askHandler(svc *engine.Service) askFunc {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input toolutil.ChatInput) (*mcp.CallToolResult, toolutil.ChatOutput, error) {
		input = input.Trim()
		if input.Message == "" {
			return nil, toolutil.ChatOutput{}, fmt.Errorf("message is required")
		}
		if input.VideoID == "" {
			return nil, toolutil.ChatOutput{}, fmt.Errorf("videoId is required")
		}
		reply, err := svc.Chat(ctx, input.VideoID, input.Message)
		if err != nil {
			return nil, toolutil.ChatOutput{}, toolError(err)
		}
		return nil, toolutil.ChatOutput{Response: reply}, nil
	}
}

// toolError keeps the error chain but shows the caller-facing message.
func toolError(err error) error {
	return &kindError{msg: engine.UserMessage(err), kind: engine.KindOf(err), err: err}
}

type kindError struct {
	msg  string
	kind engine.Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.msg }
func (e *kindError) Unwrap() error { return e.err }

func ptr[T any](v T) *T { return &v }
