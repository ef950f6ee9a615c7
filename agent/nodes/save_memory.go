package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	statex "github.com/tanpawarit/bingwa/agent/state"
	toolx "github.com/tanpawarit/bingwa/agent/tool"
	"github.com/tanpawarit/bingwa/domain/order"
)

// SaveMemory folds successful operation results of this turn into working
// memory and persists it. A failing store is logged, not surfaced.
func SaveMemory(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	for _, turn := range in.Emitted {
		if turn.Role != contractx.RoleTool || turn.Result == nil || !turn.Result.OK() {
			continue
		}
		Remember(in.Session, turn.Result.Result)
	}

	in.Session.TurnCount++
	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		log.Warn().Err(err).Str("component", "orchestrator").Str("session_id", in.SessionID).
			Msg("working memory rejected, not saved")
		return in, nil
	}
	if err := store.Save(ctx, in.Session); err != nil {
		log.Warn().Err(err).Str("component", "orchestrator").Str("session_id", in.SessionID).
			Msg("failed to save working memory")
	}
	return in, nil
}

// Remember applies one operation result to the session memory.
func Remember(st *statex.SessionState, result any) {
	switch r := result.(type) {
	case toolx.CollectDetailsResult:
		st.RememberCustomer(r.CustomerID, r.Details)
	case toolx.OrderSummary:
		st.RememberCustomer("", r.Customer)
		st.RememberOrder(orderFromSummary(r))
	case toolx.RebookResult:
		st.RememberOrder(orderFromSummary(r.Order))
	case toolx.CancelResult:
		st.ForgetOrder(r.OrderID)
	}
}

func orderFromSummary(s toolx.OrderSummary) order.Order {
	return order.Order{
		ID:       s.ID,
		Location: s.Location,
		Customer: s.Customer,
	}
}
