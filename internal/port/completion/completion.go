// Package completion defines the port interface for the language-completion
// service driving think cycles.
package completion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/echo-agent/echochamber/internal/domain/usage"
)

// ItemType discriminates conversation turn items.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// Item is one element of a turn's input or output. Exactly the fields for
// its Type are populated.
type Item struct {
	Type ItemType

	// message
	Role string
	Text string

	// function_call / function_call_output
	CallID    string
	Name      string
	Arguments string
	Output    string
}

// Message constructs a message item.
func Message(role, text string) Item {
	return Item{Type: ItemMessage, Role: role, Text: text}
}

// FunctionCall constructs a function-call item.
func FunctionCall(callID, name, arguments string) Item {
	return Item{Type: ItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

// FunctionCallOutput constructs a function-call-output item.
func FunctionCallOutput(callID, output string) Item {
	return Item{Type: ItemFunctionCallOutput, CallID: callID, Output: output}
}

// Render returns a human-readable rendering of the item, used for cycle
// logs and the thinking stream.
func (i Item) Render() string {
	switch i.Type {
	case ItemMessage:
		return fmt.Sprintf("[%s]:\n%s", i.Role, i.Text)
	case ItemFunctionCall:
		return fmt.Sprintf("[function call] %s\n%s(%s)", i.CallID, i.Name, i.Arguments)
	case ItemFunctionCallOutput:
		return fmt.Sprintf("[function call output] %s\n%s", i.CallID, indentJSON(i.Output))
	default:
		return fmt.Sprintf("<%s />", i.Type)
	}
}

func indentJSON(s string) string {
	var buf json.RawMessage
	if err := json.Unmarshal([]byte(s), &buf); err != nil {
		return s
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return s
	}
	return string(out)
}

// ToolDefinition describes one callable tool to the completion service.
// Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one turn sent to the completion service. PreviousResponseID is
// the opaque continuation token linking this turn to the prior one; empty on
// the first turn.
type Request struct {
	Input              []Item
	Tools              []ToolDefinition
	PreviousResponseID string
}

// Response is the service's reply: its ID becomes the next continuation
// token, Output holds the ordered output items.
type Response struct {
	ID     string
	Output []Item
	Usage  usage.Raw
}

// Service is the completion port.
type Service interface {
	CreateResponse(ctx context.Context, req Request) (*Response, error)
}
