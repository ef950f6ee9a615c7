package orchestratornode

import (
	"context"
	"fmt"
	"time"

	einoprompt "github.com/cloudwego/eino/components/prompt"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	promptx "github.com/tanpawarit/bingwa/agent/prompt"
)

func BuildPrompt(
	ctx context.Context,
	in *GraphState,
	template einoprompt.ChatTemplate,
	loc *time.Location,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	history, err := ToMessages(in.Turns)
	if err != nil {
		return nil, err
	}

	msgs, err := template.Format(ctx, promptx.Variables(in.Now.In(loc), in.Session.Summary(), history))
	if err != nil {
		return nil, fmt.Errorf("%w: render prompt: %v", contractx.ErrPromptMissing, err)
	}
	in.Messages = msgs
	return in, nil
}
