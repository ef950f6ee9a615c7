package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	statex "github.com/tanpawarit/bingwa/agent/state"
)

// LoadMemory attaches the session's working memory. Memory is advisory, so a
// failing store degrades to an empty memory instead of failing the turn.
func LoadMemory(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewSessionState(in.SessionID, in.Now)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Str("component", "orchestrator").Str("session_id", in.SessionID).
			Msg("working memory unavailable, continuing without it")
		st = statex.NewSessionState(in.SessionID, in.Now)
	}

	in.Session = st
	return in, nil
}
