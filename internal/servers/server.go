// Package servers holds the tool sub-servers the orchestrator fans out to.
package servers

import (
	"context"
	"fmt"
	"time"

	"shopping-agent/internal/agent"
	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/validation"
)

// Tool describes one callable operation and its JSON Schema input.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolResult is the text a tool produced. IsError marks failures the caller should surface as such.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"isError"`
}

type Server interface {
	Name() string
	Description() string
	ListTools() []Tool
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) ToolResult
}

// Runner executes one search-agent conversation. *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, system, user string, opts agent.Options) (string, error)
}

type handlerFunc func(ctx context.Context, args map[string]interface{}) (ToolResult, error)

type registeredTool struct {
	tool    Tool
	schema  *validation.Schema
	handler handlerFunc
}

// base implements the tool table shared by every server.
type base struct {
	name        string
	description string
	order       []string
	tools       map[string]*registeredTool
	logger      logger.Logger
}

func newBase(name, description string, log logger.Logger) base {
	return base{
		name:        name,
		description: description,
		tools:       make(map[string]*registeredTool),
		logger:      log.With(map[string]interface{}{"server": name}),
	}
}

// register panics on an invalid schema; schemas are package literals.
func (b *base) register(tool Tool, h handlerFunc) {
	schema, err := validation.CompileMap(b.name+"/"+tool.Name, tool.InputSchema)
	if err != nil {
		panic(err)
	}
	b.order = append(b.order, tool.Name)
	b.tools[tool.Name] = &registeredTool{tool: tool, schema: schema, handler: h}
}

func (b *base) Name() string { return b.name }

func (b *base) Description() string { return b.description }

func (b *base) ListTools() []Tool {
	out := make([]Tool, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.tools[name].tool)
	}
	return out
}

// ExecuteTool validates args against the tool schema, fills defaults and runs the handler.
func (b *base) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	rt, ok := b.tools[name]
	if !ok {
		return errorResult(apperrors.NewUnknownToolError(name).Message)
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	args = rt.schema.ApplyDefaults(args)
	if res := rt.schema.Validate(args); !res.Valid {
		return errorResult(apperrors.NewToolArgumentsInvalidError(name, res.Error()).Error())
	}

	start := time.Now()
	result, err := rt.handler(ctx, args)
	fields := map[string]interface{}{
		"tool":     name,
		"duration": time.Since(start).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		b.logger.Warn("tool failed", fields)
		return errorResult(err.Error())
	}
	b.logger.Debug("tool completed", fields)
	return result
}

func textResult(content string) ToolResult { return ToolResult{Content: content} }

func errorResult(content string) ToolResult { return ToolResult{Content: content, IsError: true} }

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func stringsArg(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func stringListProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
