package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cleantransparency/backend/internal/audit"
	"cleantransparency/backend/internal/hitl"
	"cleantransparency/backend/internal/verify"
)

// Server exposes the read-only certification surface over the Model
// Context Protocol so agent clients can query certificates, trails, and
// the review queue. Decision submission stays HTTP-only: it needs an
// authenticated reviewer.
type Server struct {
	mcpServer   *server.MCPServer
	verifier    *verify.Verifier
	trail       *audit.TrailBuilder
	coordinator *hitl.Coordinator
}

func NewServer(verifier *verify.Verifier, trail *audit.TrailBuilder, coordinator *hitl.Coordinator) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"CleanTransparency Certification",
			"2.0.0",
			server.WithToolCapabilities(true),
		),
		verifier:    verifier,
		trail:       trail,
		coordinator: coordinator,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"verify_certificate",
			mcp.WithDescription("Verify the integrity of an issued certificate against its hash chain"),
			mcp.WithString("certificado_id", mcp.Required(), mcp.Description("The certificate identifier (CERT-...)")),
		),
		s.handleVerifyCertificate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_audit_trail",
			mcp.WithDescription("Reconstruct the full audit trail for a certification request"),
			mcp.WithString("request_id", mcp.Required(), mcp.Description("The certification request identifier")),
		),
		s.handleGetAuditTrail,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_pending_reviews",
			mcp.WithDescription("List cases awaiting human review, highest risk first"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of cases to return")),
		),
		s.handleListPendingReviews,
	)
}

func (s *Server) handleVerifyCertificate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	certificadoID, ok := args["certificado_id"].(string)
	if !ok || certificadoID == "" {
		return mcp.NewToolResultError("Missing required parameter: certificado_id"), nil
	}

	result, err := s.verifier.Verify(ctx, certificadoID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to verify certificate: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetAuditTrail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	requestID, ok := args["request_id"].(string)
	if !ok || requestID == "" {
		return mcp.NewToolResultError("Missing required parameter: request_id"), nil
	}

	trail, err := s.trail.Build(ctx, requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build audit trail: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(trail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListPendingReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	limit := 0
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	pending, err := s.coordinator.ListPending(ctx, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list pending reviews: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(pending)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
