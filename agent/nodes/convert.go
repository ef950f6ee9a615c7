package orchestratornode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

// ToMessages converts client turns into model messages.
func ToMessages(turns []contractx.Turn) ([]*schema.Message, error) {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case contractx.RoleUser:
			msgs = append(msgs, schema.UserMessage(turn.Content))
		case contractx.RoleAssistant:
			calls, err := toSchemaToolCalls(turn.ToolCalls)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, schema.AssistantMessage(turn.Content, calls))
		case contractx.RoleTool:
			content := turn.Content
			if turn.Result != nil {
				raw, err := json.Marshal(turn.Result)
				if err != nil {
					return nil, fmt.Errorf("%w: encode tool result: %v", contractx.ErrValidation, err)
				}
				content = string(raw)
			}
			msgs = append(msgs, schema.ToolMessage(content, turn.ToolCallID))
		default:
			return nil, fmt.Errorf("%w: unknown role %q", contractx.ErrValidation, turn.Role)
		}
	}
	return msgs, nil
}

func toSchemaToolCalls(calls []contractx.ToolCall) ([]schema.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("%w: encode tool arguments: %v", contractx.ErrValidation, err)
		}
		out = append(out, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: string(raw),
			},
		})
	}
	return out, nil
}

// normalizeToolCalls fills missing call ids and decodes arguments. A call whose
// arguments are not a JSON object keeps nil Arguments and a non-nil parse error.
func normalizeToolCalls(calls []schema.ToolCall, round int) ([]schema.ToolCall, []contractx.ToolCall, []error) {
	fixed := make([]schema.ToolCall, len(calls))
	out := make([]contractx.ToolCall, len(calls))
	errs := make([]error, len(calls))
	for i, call := range calls {
		if strings.TrimSpace(call.ID) == "" {
			call.ID = "call_" + strconv.Itoa(round) + "_" + strconv.Itoa(i)
		}
		if call.Type == "" {
			call.Type = "function"
		}
		fixed[i] = call

		name := strings.TrimSpace(call.Function.Name)
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = nil
				errs[i] = err
			}
		}
		out[i] = contractx.ToolCall{ID: call.ID, Name: name, Arguments: args}
	}
	return fixed, out, errs
}

func encodeToolResult(res contractx.ToolResult) string {
	raw, err := json.Marshal(res)
	if err != nil {
		fallback, _ := json.Marshal(contractx.ToolResult{
			Tool: res.Tool,
			Error: &contractx.OperationError{
				Kind:    contractx.KindUpstreamUnavailable,
				Message: "result could not be encoded",
			},
		})
		return string(fallback)
	}
	return string(raw)
}
