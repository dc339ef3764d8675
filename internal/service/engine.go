package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echo-agent/echochamber/internal/adapter/otel"
	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/completion"
	"github.com/echo-agent/echochamber/internal/tool"
)

// primingTools are executed eagerly before the first turn so the completion
// service starts with situational awareness already in context.
var primingTools = []string{"recall_context", "get_current_time", "check_notifications"}

// maxThinkingLength caps one thinking-stream post to the chat transport.
const maxThinkingLength = 2000

// Engine drives one think cycle: a bounded tool-calling exchange with the
// completion service. It owns the provider continuation token for the
// duration of a cycle and nothing else; all durable state lives behind the
// tool context's ports.
type Engine struct {
	completer completion.Service
	registry  *tool.Registry
	events    *Events
	maxTurns  int
	logger    *slog.Logger
}

// NewEngine creates a think-cycle engine.
func NewEngine(completer completion.Service, registry *tool.Registry, events *Events, maxTurns int, logger *slog.Logger) *Engine {
	return &Engine{
		completer: completer,
		registry:  registry,
		events:    events,
		maxTurns:  maxTurns,
		logger:    logger,
	}
}

// Think runs the full loop for one instance and returns the accumulated
// provider usage. The cycle's tokens are billed even when the loop is
// truncated or a turn fails, so accumulated usage is returned alongside any
// error.
func (e *Engine) Think(ctx context.Context, tc *tool.Context) (usage.Raw, error) {
	var total usage.Raw

	input := []completion.Item{
		completion.Message("developer", tc.Instance.SystemPrompt),
	}
	input = append(input, e.prime(ctx, tc)...)

	defs := e.registry.Definitions()
	previousID := ""

	for turn := 1; ; turn++ {
		if turn > e.maxTurns {
			e.logger.Warn("think cycle truncated",
				"instance_id", tc.Instance.ID, "max_turns", e.maxTurns)
			return total, nil
		}

		resp, err := e.completer.CreateResponse(ctx, completion.Request{
			Input:              input,
			Tools:              defs,
			PreviousResponseID: previousID,
		})
		if err != nil {
			return total, fmt.Errorf("turn %d: %w", turn, err)
		}
		total.Merge(resp.Usage)
		previousID = resp.ID

		var calls []completion.Item
		for _, item := range resp.Output {
			e.stream(ctx, tc, item)
			if item.Type == completion.ItemFunctionCall {
				calls = append(calls, item)
			}
		}

		if len(calls) == 0 {
			return total, nil
		}

		input = input[:0]
		for _, call := range calls {
			if e.events != nil {
				e.events.ToolCalled(ctx)
			}
			callCtx, span := otel.StartToolCallSpan(ctx, call.CallID, call.Name)
			output := e.registry.Execute(callCtx, tc, call.Name, call.Arguments)
			span.End()
			out := completion.FunctionCallOutput(call.CallID, output)
			e.stream(ctx, tc, out)
			input = append(input, out)
		}
	}
}

// prime executes the priming tools and renders them as completed function
// calls in the first turn's input.
func (e *Engine) prime(ctx context.Context, tc *tool.Context) []completion.Item {
	items := make([]completion.Item, 0, 2*len(primingTools))
	for _, name := range primingTools {
		callID := "call_" + uuid.NewString()
		output := e.registry.Execute(ctx, tc, name, "{}")

		call := completion.FunctionCall(callID, name, "{}")
		result := completion.FunctionCallOutput(callID, output)
		e.stream(ctx, tc, call)
		e.stream(ctx, tc, result)
		items = append(items, call, result)
	}
	return items
}

// stream logs one loop item and forwards its rendering to the thinking
// channel and WebSocket clients. Delivery failures never affect the cycle.
func (e *Engine) stream(ctx context.Context, tc *tool.Context, item completion.Item) {
	text := item.Render()
	e.logger.Debug("think item", "instance_id", tc.Instance.ID, "item", text)

	if e.events != nil {
		e.events.Thinking(ctx, tc.Instance.ID, text)
	}

	if tc.Instance.ThinkingChannelID == "" {
		return
	}
	if len([]rune(text)) > maxThinkingLength {
		runes := []rune(text)
		text = string(runes[:maxThinkingLength-3]) + "..."
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := tc.Chat.Send(sendCtx, tc.Instance.ThinkingChannelID, text); err != nil {
		e.logger.Warn("thinking stream send failed",
			"instance_id", tc.Instance.ID, "error", err)
	}
}

// buildToolContext assembles the per-cycle tool context for an instance.
func buildToolContext(inst config.Instance, deps Deps, now func() time.Time) *tool.Context {
	return &tool.Context{
		Instance: inst,
		Storage:  deps.Store,
		Chat:     deps.Chat,
		Embedder: deps.Embedder,
		Logger:   deps.Logger,
		Now:      now,
	}
}
