package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	statex "github.com/tanpawarit/bingwa/agent/state"
)

var (
	ErrInvalidMessage = errors.New("last turn must be a non-empty user message")
	ErrInvalidSession = errors.New("session id is empty")
	ErrInvalidTurn    = errors.New("conversation turn is invalid")
)

type GraphInput struct {
	SessionID string
	Turns     []contractx.Turn
	Sink      contractx.Sink
}

type GraphOutput struct {
	Reply string
	Turns []contractx.Turn
	Error *contractx.OperationError
}

// GraphState is threaded through every node of one user turn.
type GraphState struct {
	SessionID string
	Now       time.Time
	Turns     []contractx.Turn
	Sink      contractx.Sink

	Session  *statex.SessionState
	Messages []*schema.Message

	Emitted []contractx.Turn
	Reply   string
	Failure *contractx.OperationError
}

// Emit records a produced turn and hands it to the sink.
func (g *GraphState) Emit(turn contractx.Turn) {
	g.Emitted = append(g.Emitted, turn)
	if g.Sink != nil {
		g.Sink(turn)
	}
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if len(in.Turns) == 0 {
		return nil, ErrInvalidMessage
	}

	last := in.Turns[len(in.Turns)-1]
	if last.Role != contractx.RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, ErrInvalidMessage
	}

	for i, turn := range in.Turns {
		switch turn.Role {
		case contractx.RoleUser, contractx.RoleAssistant:
		case contractx.RoleTool:
			if strings.TrimSpace(turn.ToolCallID) == "" {
				return nil, fmt.Errorf("%w: tool turn %d has no tool call id", ErrInvalidTurn, i)
			}
		default:
			return nil, fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidTurn, i, turn.Role)
		}
	}

	return &GraphState{
		SessionID: sessionID,
		Now:       nowFn(),
		Turns:     in.Turns,
		Sink:      in.Sink,
	}, nil
}
