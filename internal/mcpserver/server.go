// Package mcpserver exposes the shopping tools to MCP clients over stdio.
//
// Framing, method dispatch and the initialize handshake are handled by
// mark3labs/mcp-go. This package only declares the tools, validates their
// arguments and turns domain results into text content.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/common/observability"
	"shopping-agent/internal/common/validation"
	"shopping-agent/internal/orchestrator"
	"shopping-agent/internal/tracker"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServerName    = "shopping-agent"
	ServerVersion = "1.0.0"
)

// CashbackLookup answers cashback questions. *cashback.Service satisfies it.
type CashbackLookup interface {
	Lookup(ctx context.Context, retailers []string, category string) (string, error)
}

// RetailerFinder lists the retailers worth checking. *retailers.Service satisfies it.
type RetailerFinder interface {
	LookupRetailers(ctx context.Context, query, category string) (string, error)
}

// CompleteSearch runs the full fan-out search. *orchestrator.Orchestrator satisfies it.
type CompleteSearch interface {
	SearchProductComplete(ctx context.Context, query string) (*orchestrator.Result, error)
}

// Deps are the services behind the tools. Tracker and Observability are optional;
// without a Tracker the tracking tools are not registered.
type Deps struct {
	Searcher      tracker.PriceSearcher
	Cashback      CashbackLookup
	Retailers     RetailerFinder
	Orchestrator  CompleteSearch
	Tracker       *tracker.Tracker
	Observability *observability.Observability
}

type toolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger logger.Logger
	tools  []string
}

func New(deps Deps, log logger.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		deps:   deps,
		logger: log.With(map[string]interface{}{"component": "mcp-server"}),
	}
	s.registerShoppingTools()
	if deps.Tracker != nil {
		s.registerTrackingTools()
	}
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// Serve speaks MCP over the given streams until ctx is done or in is closed.
// Protocol errors are written to errLog, never to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, errLog io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(errLog, "", log.LstdFlags))

	s.logger.Info("MCP server listening on stdio", map[string]interface{}{
		"tools": len(s.tools),
	})
	return stdio.Listen(ctx, in, out)
}

// add registers a tool whose arguments are checked against its own input schema.
func (s *Server) add(tool mcp.Tool, fn toolFunc) {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		panic(fmt.Sprintf("mcpserver: marshal schema for %s: %v", tool.Name, err))
	}
	schema, err := validation.Compile(tool.Name, raw)
	if err != nil {
		panic(fmt.Sprintf("mcpserver: compile schema for %s: %v", tool.Name, err))
	}

	s.tools = append(s.tools, tool.Name)
	s.mcp.AddTool(tool, s.wrap(tool.Name, schema, fn))
}

func (s *Server) wrap(name string, schema *validation.Schema, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		if obs := s.deps.Observability; obs != nil {
			var span trace.Span
			ctx, span = obs.StartSpan(ctx, "mcp."+name)
			defer span.End()
		}

		text, err := s.call(ctx, name, schema, request.GetArguments(), fn)

		status := "success"
		if err != nil {
			status = "error"
		}
		elapsed := time.Since(start)
		metrics.ToolCalls.WithLabelValues(name, status).Inc()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if s.deps.Observability != nil {
			s.deps.Observability.RecordOperation(ctx, name, elapsed, status)
		}

		if err != nil {
			s.logger.Warn("tool call failed", map[string]interface{}{
				"tool":  name,
				"error": err.Error(),
			})
			return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", name, err)), nil
		}
		s.logger.Debug("tool call completed", map[string]interface{}{
			"tool":     name,
			"duration": elapsed.String(),
		})
		return mcp.NewToolResultText(text), nil
	}
}

func (s *Server) call(ctx context.Context, name string, schema *validation.Schema, args map[string]interface{}, fn toolFunc) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	args = schema.ApplyDefaults(args)
	if res := schema.Validate(args); !res.Valid {
		return "", apperrors.NewToolArgumentsInvalidError(name, res.Error())
	}
	return fn(ctx, args)
}
