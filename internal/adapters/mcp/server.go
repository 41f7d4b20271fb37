package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

const serverName = "insurance-doc-classifier"

// Server exposes batch actions as MCP tools.
type Server struct {
	batches ports.BatchExecutor
	version string
	logger  *slog.Logger
}

func NewServer(batches ports.BatchExecutor, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{batches: batches, version: version, logger: logger}
}

func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, s.version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("classify_document",
		mcp.WithDescription("Classify one insurance document as Loss Run, ACORD form, Supplemental forms or Mod sheet."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Original file name including extension.")),
		mcp.WithString("content_base64", mcp.Required(), mcp.Description("File content, base64 encoded.")),
	), s.classifyDocument)

	srv.AddTool(mcp.NewTool("classify_references",
		mcp.WithDescription("Classify documents already stored in the uploads bucket."),
		mcp.WithArray("keys", mcp.Required(), mcp.Description("Object keys to classify."), mcp.Items(map[string]any{"type": "string"})),
	), s.classifyReferences)

	srv.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List stored documents available for classification."),
		mcp.WithString("prefix", mcp.Description("Key prefix, defaults to the uploads prefix.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of objects to return.")),
	), s.listReferences)

	return srv
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) classifyDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := request.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, domain.BatchRequest{
		Action: domain.ActionClassifyUploads,
		Files:  []domain.EncodedFile{{Filename: filename, Content: content}},
	})
}

func (s *Server) classifyReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := request.GetStringSlice("keys", nil)
	if len(keys) == 0 {
		return mcp.NewToolResultError("keys must contain at least one object key"), nil
	}
	refs := make([]domain.Reference, 0, len(keys))
	for _, key := range keys {
		refs = append(refs, domain.Reference{Key: key})
	}
	return s.execute(ctx, domain.BatchRequest{Action: domain.ActionClassifyReferences, References: refs})
}

func (s *Server) listReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execute(ctx, domain.BatchRequest{
		Action: domain.ActionListReferences,
		Prefix: request.GetString("prefix", ""),
		Limit:  request.GetInt("limit", 0),
	})
}

// execute reports caller mistakes as tool errors and everything else as a
// protocol error.
func (s *Server) execute(ctx context.Context, req domain.BatchRequest) (*mcp.CallToolResult, error) {
	resp, err := s.batches.Execute(ctx, req)
	if err != nil {
		s.logger.Warn("mcp_tool_failed", "action", string(req.Action), "error", err)
		if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("%s: %w", req.Action, err)
	}
	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, errors.New("encode tool result")
	}
	return mcp.NewToolResultText(string(body)), nil
}
