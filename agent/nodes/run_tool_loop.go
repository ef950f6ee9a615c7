package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

const (
	FallbackReply   = "Sorry, I couldn't reach the booking assistant right now. Please try again."
	RoundLimitReply = "I'm still working on your request. Reply \"continue\" and I'll pick up where I left off."
	EmptyReply      = "Sorry, I didn't catch that. Could you tell me a bit more about what you need?"

	DefaultMaxToolRounds = 6
	DefaultModelRetries  = 1
)

type LoopConfig struct {
	MaxToolRounds int
	ModelRetries  int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.ModelRetries < 0 {
		c.ModelRetries = 0
	}
	return c
}

// RunToolLoop alternates model calls and operation invocations until the model
// answers in plain text or the round budget is spent. Only the first tool call
// of a response is executed.
func RunToolLoop(
	ctx context.Context,
	in *GraphState,
	chatModel einomodel.BaseChatModel,
	tools contractx.ToolGateway,
	cfg LoopConfig,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	cfg = cfg.withDefaults()
	logger := log.With().Str("component", "orchestrator").Str("session_id", in.SessionID).Logger()

	messages := append([]*schema.Message(nil), in.Messages...)
	for round := 0; round < cfg.MaxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := generate(ctx, chatModel, messages, cfg.ModelRetries)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Error().Err(err).Int("round", round).Msg("model unavailable, ending turn")
			in.Failure = &contractx.OperationError{
				Kind:    contractx.KindUpstreamUnavailable,
				Message: "the language model could not be reached",
			}
			in.finish(FallbackReply)
			return in, nil
		}

		if len(msg.ToolCalls) == 0 {
			reply := strings.TrimSpace(msg.Content)
			if reply == "" {
				reply = EmptyReply
			}
			in.finish(reply)
			return in, nil
		}

		fixed, calls, parseErrs := normalizeToolCalls(msg.ToolCalls, round)
		assistant := schema.AssistantMessage(msg.Content, fixed)
		messages = append(messages, assistant)
		in.Emit(contractx.Turn{
			Role:      contractx.RoleAssistant,
			Content:   strings.TrimSpace(msg.Content),
			ToolCalls: calls,
		})

		for i, call := range calls {
			var res contractx.ToolResult
			switch {
			case i > 0:
				res = contractx.ToolResult{Tool: call.Name, Error: &contractx.OperationError{
					Kind:    contractx.KindInvalidArguments,
					Message: "only one operation runs per step; call " + call.Name + " again after reading the previous result",
				}}
			case parseErrs[i] != nil:
				res = contractx.ToolResult{Tool: call.Name, Error: &contractx.OperationError{
					Kind:    contractx.KindInvalidArguments,
					Message: "arguments must be a JSON object",
				}}
			default:
				res = tools.Invoke(ctx, call.Name, call.Arguments)
			}

			messages = append(messages, schema.ToolMessage(encodeToolResult(res), call.ID))
			result := res
			in.Emit(contractx.Turn{
				Role:       contractx.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     &result,
			})
		}
	}

	logger.Warn().Int("max_tool_rounds", cfg.MaxToolRounds).Msg("tool round limit reached")
	in.finish(RoundLimitReply)
	return in, nil
}

func (g *GraphState) finish(reply string) {
	g.Reply = reply
	g.Emit(contractx.Turn{Role: contractx.RoleAssistant, Content: reply})
}

func generate(ctx context.Context, chatModel einomodel.BaseChatModel, messages []*schema.Message, retries int) (*schema.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := chatModel.Generate(ctx, messages)
		if err == nil && msg != nil {
			return msg, nil
		}
		if err == nil {
			err = errors.New("empty model response")
		}
		lastErr = fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		log.Warn().Err(err).Str("component", "orchestrator").Int("attempt", attempt+1).Msg("model call failed")
	}
	return nil, lastErr
}
