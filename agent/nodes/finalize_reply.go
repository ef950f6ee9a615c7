package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn ended without a reply", contractx.ErrSchemaViolation)
	}
	return GraphOutput{
		Reply: reply,
		Turns: in.Emitted,
		Error: in.Failure,
	}, nil
}
