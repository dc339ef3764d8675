// Package openai adapts the OpenAI Responses and Embeddings APIs to the
// completion and embedding ports.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/completion"
	"github.com/echo-agent/echochamber/internal/resilience"
)

// Completer implements completion.Service on the OpenAI Responses API.
// Conversation continuity rides on previous_response_id with server-side
// storage, so the runtime never replays history itself.
type Completer struct {
	client      openai.Client
	model       string
	temperature float64
	topP        float64
	breaker     *resilience.Breaker
}

// NewCompleter creates a Completer from the OpenAI config.
func NewCompleter(cfg config.OpenAI, opts ...option.RequestOption) *Completer {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Completer{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
}

// SetBreaker attaches a circuit breaker to all completion calls.
func (c *Completer) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// CreateResponse runs one completion turn.
func (c *Completer) CreateResponse(ctx context.Context, req completion.Request) (*completion.Response, error) {
	params := responses.ResponseNewParams{
		Model:             shared.ResponsesModel(c.model),
		Input:             responses.ResponseNewParamsInputUnion{OfInputItemList: toInputItems(req.Input)},
		Temperature:       openai.Float(c.temperature),
		TopP:              openai.Float(c.topP),
		Store:             openai.Bool(true),
		ParallelToolCalls: openai.Bool(false),
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        td.Name,
				Description: openai.String(td.Description),
				Parameters:  td.Parameters,
				Strict:      openai.Bool(false),
			},
		})
	}

	var resp *responses.Response
	call := func() error {
		var err error
		resp, err = c.client.Responses.New(ctx, params)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("create response: %w", err)
	}

	return &completion.Response{
		ID:     resp.ID,
		Output: fromOutputItems(resp.Output),
		Usage:  toRawUsage(resp.Usage),
	}, nil
}

// toInputItems converts port items to Responses API input items.
func toInputItems(items []completion.Item) responses.ResponseInputParam {
	out := make(responses.ResponseInputParam, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case completion.ItemMessage:
			out = append(out, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRole(it.Role),
					Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(it.Text)},
				},
			})
		case completion.ItemFunctionCall:
			out = append(out, responses.ResponseInputItemUnionParam{
				OfFunctionCall: &responses.ResponseFunctionToolCallParam{
					CallID:    it.CallID,
					Name:      it.Name,
					Arguments: it.Arguments,
				},
			})
		case completion.ItemFunctionCallOutput:
			out = append(out, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: it.CallID,
					Output: it.Output,
				},
			})
		}
	}
	return out
}

// fromOutputItems converts Responses API output items to port items.
// Reasoning and other non-message, non-call items are skipped.
func fromOutputItems(items []responses.ResponseOutputItemUnion) []completion.Item {
	var out []completion.Item
	for _, it := range items {
		switch it.Type {
		case "message":
			msg := it.AsMessage()
			for _, part := range msg.Content {
				if part.Type == "output_text" {
					out = append(out, completion.Message(string(msg.Role), part.Text))
				}
			}
		case "function_call":
			fc := it.AsFunctionCall()
			out = append(out, completion.FunctionCall(fc.CallID, fc.Name, fc.Arguments))
		}
	}
	return out
}

func toRawUsage(u responses.ResponseUsage) usage.Raw {
	return usage.Raw{
		InputTokens:       u.InputTokens,
		CachedInputTokens: u.InputTokensDetails.CachedTokens,
		OutputTokens:      u.OutputTokens,
		ReasoningTokens:   u.OutputTokensDetails.ReasoningTokens,
		TotalTokens:       u.TotalTokens,
	}
}
