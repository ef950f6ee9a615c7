package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	nodex "github.com/tanpawarit/bingwa/agent/nodes"
	promptx "github.com/tanpawarit/bingwa/agent/prompt"
	statex "github.com/tanpawarit/bingwa/agent/state"
	"github.com/tanpawarit/bingwa/pkg/keylock"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrInvalidTurn    = nodex.ErrInvalidTurn
)

type Config struct {
	MaxToolRounds int
	ModelRetries  int
	// Location is the time zone the prompt's current time is rendered in.
	Location *time.Location
	Clock    func() time.Time
}

type Orchestrator struct {
	store    statex.Store
	model    einomodel.BaseChatModel
	tools    contractx.ToolGateway
	template einoprompt.ChatTemplate
	locks    *keylock.Locker

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	loop nodex.LoopConfig
	loc  *time.Location
	now  func() time.Time
}

var _ contractx.Orchestrator = (*Orchestrator)(nil)

func New(
	store statex.Store,
	chatModel einomodel.ToolCallingChatModel,
	tools contractx.ToolGateway,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	bound, err := chatModel.WithTools(tools.ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	o := &Orchestrator{
		store:    store,
		model:    bound,
		tools:    tools,
		template: promptx.NewChatTemplate(),
		locks:    keylock.New(),
		loop: nodex.LoopConfig{
			MaxToolRounds: cfg.MaxToolRounds,
			ModelRetries:  cfg.ModelRetries,
		},
		loc: loc,
		now: clock,
	}

	graphRunner, err := o.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Handle runs one user turn. Turns of the same session are serialised; emitted
// turns reach sink before Handle returns.
func (o *Orchestrator) Handle(ctx context.Context, req contractx.ChatRequest, sink contractx.Sink) (contractx.ChatResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return contractx.ChatResponse{}, ErrInvalidSession
	}

	unlock, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return contractx.ChatResponse{}, err
	}
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Turns:     req.Turns,
		Sink:      sink,
	})
	if err != nil {
		return contractx.ChatResponse{}, err
	}
	return contractx.ChatResponse{
		SessionID: sessionID,
		Reply:     out.Reply,
		Turns:     out.Turns,
		Error:     out.Error,
	}, nil
}

// HandleMessage is a convenience for single-message clients with no replayed history.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (string, error) {
	resp, err := o.Handle(ctx, contractx.ChatRequest{
		SessionID: sessionID,
		Turns:     []contractx.Turn{{Role: contractx.RoleUser, Content: text}},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}
