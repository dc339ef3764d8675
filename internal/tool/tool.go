// Package tool provides the named, schema-described functions the completion
// service may invoke during a think cycle, and the registry dispatching them.
// Tool execution never panics or returns a Go error to the loop: every
// failure mode is converted into a structured result payload so the model
// can self-correct.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/port/chat"
	"github.com/echo-agent/echochamber/internal/port/completion"
	"github.com/echo-agent/echochamber/internal/port/embedding"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

// Context bundles everything a tool handler may need. It is handed to every
// invocation and is not itself persisted.
type Context struct {
	Instance config.Instance
	Storage  storage.Store
	Chat     chat.Transport
	Embedder embedding.Service
	Logger   *slog.Logger

	// Now is the clock used by handlers; tests substitute a fixed one.
	Now func() time.Time
}

// Time returns the current time, falling back to time.Now when no clock was
// injected.
func (c *Context) Time() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Handler executes a tool with already-validated raw JSON arguments and
// returns a result payload. A returned error is converted into a failure
// payload by Execute; handlers should prefer Fail for business-rule
// failures so the message reaches the model verbatim.
type Handler func(ctx context.Context, tc *Context, args json.RawMessage) (any, error)

// Tool is one callable function: name, description and a JSON schema for
// its arguments, plus the handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Definition renders the tool for the completion service.
func (t *Tool) Definition() completion.ToolDefinition {
	params := t.Parameters
	if params == nil {
		params = ObjectSchema(nil, nil)
	}
	return completion.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// Execute runs the tool against raw JSON arguments and returns the JSON
// result payload. Argument parse failures, handler errors and marshalling
// problems all become {"success":false,"error":...} payloads.
func (t *Tool) Execute(ctx context.Context, tc *Context, rawArgs string) string {
	if rawArgs == "" {
		rawArgs = "{}"
	}
	if !json.Valid([]byte(rawArgs)) {
		return marshalResult(Fail(fmt.Sprintf("invalid JSON arguments for '%s'", t.Name)))
	}

	result, err := t.Handler(ctx, tc, json.RawMessage(rawArgs))
	if err != nil {
		tc.Logger.Error("tool execution failed", "tool", t.Name, "error", err)
		return marshalResult(Fail(fmt.Sprintf("failed to execute '%s'", t.Name)))
	}
	return marshalResult(result)
}

func marshalResult(result any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(data)
}

// Result is the common success/failure envelope for tool payloads.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the plain success payload.
func OK() Result { return Result{Success: true} }

// Fail is a business-rule failure surfaced to the model as data.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

// DecodeArgs strictly unmarshals raw into args, rejecting unknown fields.
func DecodeArgs(raw json.RawMessage, args any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// ObjectSchema builds a strict JSON schema object from property schemas and
// the list of required property names.
func ObjectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// StringSchema builds a string property schema.
func StringSchema(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// Registry holds the tools available to one instance, in registration order.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates a registry from the given tools.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name]; dup {
			continue
		}
		r.order = append(r.order, t.Name)
		r.tools[t.Name] = t
	}
	return r
}

// DefaultRegistry assembles the full tool set an instance thinks with.
func DefaultRegistry() *Registry {
	return NewRegistry(
		CurrentTime(),
		ThinkDeeply(),
		CheckNotifications(),
		ReadChatMessages(),
		SendChatMessage(),
		AddReaction(),
		CreateTask(),
		ListTasks(),
		UpdateTask(),
		DeleteTask(),
		CompleteTask(),
		StoreContext(),
		RecallContext(),
		StoreKnowledge(),
		SearchKnowledge(),
		StoreMemory(),
		SearchMemory(),
	)
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions renders all tools for the completion service.
func (r *Registry) Definitions() []completion.ToolDefinition {
	defs := make([]completion.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute dispatches a function call by name. An unregistered name yields a
// structured payload listing the available tools instead of an error.
func (r *Registry) Execute(ctx context.Context, tc *Context, name, rawArgs string) string {
	t, ok := r.tools[name]
	if !ok {
		payload := map[string]any{
			"success":             false,
			"error":               fmt.Sprintf("function '%s' is not registered", name),
			"available_functions": r.Names(),
		}
		return marshalResult(payload)
	}
	return t.Execute(ctx, tc, rawArgs)
}
