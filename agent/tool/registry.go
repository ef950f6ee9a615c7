package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	"github.com/tanpawarit/bingwa/domain/catalog"
	"github.com/tanpawarit/bingwa/domain/order"
)

type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Operation is one entry of the catalog offered to the model.
type Operation struct {
	Name    string
	Desc    string
	Params  map[string]*Param
	handler handlerFunc
}

// define binds a typed handler. Arguments are decoded only after validation passed.
func define[In any](name, desc string, params map[string]*Param, fn func(ctx context.Context, in In) (any, error)) Operation {
	return Operation{
		Name:   name,
		Desc:   desc,
		Params: params,
		handler: func(ctx context.Context, args map[string]any) (any, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("%w: encode arguments: %v", contractx.ErrValidation, err)
			}
			var in In
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, fmt.Errorf("%w: decode arguments: %v", contractx.ErrValidation, err)
			}
			return fn(ctx, in)
		},
	}
}

func (op Operation) ToolInfo() *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(op.Params))
	for name, p := range op.Params {
		params[name] = p.ToParameterInfo()
	}
	return &schema.ToolInfo{
		Name:        op.Name,
		Desc:        op.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

type Deps struct {
	Catalog     catalog.Store
	Orders      *order.Manager
	Location    *time.Location
	IDGenerator func() string
}

// Registry maps operation names to validated, typed handlers.
type Registry struct {
	catalog  catalog.Store
	orders   *order.Manager
	loc      *time.Location
	newID    func() string
	ops      map[string]Operation
	ordering []string
}

var _ contractx.ToolGateway = (*Registry)(nil)

func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Catalog == nil {
		return nil, errors.New("tool registry: catalog store is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("tool registry: order manager is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	r := &Registry{
		catalog: deps.Catalog,
		orders:  deps.Orders,
		loc:     loc,
		newID:   idGen,
		ops:     make(map[string]Operation),
	}
	for _, op := range r.operations() {
		if _, dup := r.ops[op.Name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate operation %q", op.Name)
		}
		r.ops[op.Name] = op
		r.ordering = append(r.ordering, op.Name)
	}
	return r, nil
}

func (r *Registry) operations() []Operation {
	return []Operation{
		r.listServicesOp(),
		r.resolveVariantOp(),
		r.selectProviderOp(),
		r.getAvailableSlotsOp(),
		r.collectUserDetailsOp(),
		r.createOrderOp(),
		r.processPaymentOp(),
		r.trackOrderStatusOp(),
		r.updateOrderStatusOp(),
		r.cancelOrderOp(),
		r.rescheduleOrderOp(),
		r.submitReviewOp(),
		r.rebookServiceOp(),
		r.handlePostServiceOp(),
		r.requestReviewOp(),
	}
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.ordering...)
}

func (r *Registry) Operation(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.ordering))
	for _, name := range r.ordering {
		infos = append(infos, r.ops[name].ToolInfo())
	}
	return infos
}

// Invoke validates args and runs the named operation. Failures come back as a
// structured error inside the result; Invoke itself never fails.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) contractx.ToolResult {
	started := time.Now()
	logger := log.With().Str("component", "tool").Str("tool", name).Logger()

	op, ok := r.ops[name]
	if !ok {
		logger.Warn().Msg("unknown operation requested")
		return contractx.ToolResult{Tool: name, Error: &contractx.OperationError{
			Kind:    contractx.KindUnknownOperation,
			Message: fmt.Sprintf("unknown operation %q; available operations: %s", name, strings.Join(r.ordering, ", ")),
		}}
	}

	if args == nil {
		args = map[string]any{}
	}
	if fields := validateArgs(op.Params, args); len(fields) > 0 {
		logger.Info().Int("field_errors", len(fields)).Msg("operation arguments rejected")
		return contractx.ToolResult{Tool: name, Error: &contractx.OperationError{
			Kind:    contractx.KindInvalidArguments,
			Message: "arguments do not match the operation schema",
			Fields:  fields,
		}}
	}

	result, err := op.handler(ctx, args)
	if err != nil {
		opErr := classify(err)
		logger.Info().Err(err).Str("kind", string(opErr.Kind)).Dur("elapsed", time.Since(started)).Msg("operation failed")
		return contractx.ToolResult{Tool: name, Error: opErr}
	}

	logger.Debug().Dur("elapsed", time.Since(started)).Msg("operation completed")
	return contractx.ToolResult{Tool: name, Result: result}
}

func classify(err error) *contractx.OperationError {
	var opErr *contractx.OperationError
	if errors.As(err, &opErr) {
		return opErr
	}

	var te *order.TransitionError
	if errors.As(err, &te) {
		return &contractx.OperationError{
			Kind:          contractx.KindIllegalTransition,
			Message:       te.Reason,
			CurrentStatus: string(te.Current),
		}
	}

	var fe *order.FieldError
	if errors.As(err, &fe) {
		return &contractx.OperationError{
			Kind:    contractx.KindInvalidArguments,
			Message: fe.Field + " " + fe.Message,
			Fields:  []contractx.FieldError{{Field: fe.Field, Message: fe.Message}},
		}
	}

	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return &contractx.OperationError{Kind: contractx.KindNotFound, Message: err.Error()}
	case errors.Is(err, order.ErrInvalidInput), errors.Is(err, contractx.ErrValidation):
		return &contractx.OperationError{Kind: contractx.KindInvalidArguments, Message: err.Error()}
	case errors.Is(err, order.ErrConflict):
		return &contractx.OperationError{
			Kind:    contractx.KindIllegalTransition,
			Message: "the order changed while this request was processed; track it and try again",
		}
	default:
		return &contractx.OperationError{
			Kind:    contractx.KindUpstreamUnavailable,
			Message: "the booking system could not complete the request; please try again",
		}
	}
}

func invalidArgument(field, message string) error {
	return &contractx.OperationError{
		Kind:    contractx.KindInvalidArguments,
		Message: field + " " + message,
		Fields:  []contractx.FieldError{{Field: field, Message: message}},
	}
}
