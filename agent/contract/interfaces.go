package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ToolGateway executes one named operation and describes the catalog to the model.
type ToolGateway interface {
	Invoke(ctx context.Context, name string, args map[string]any) ToolResult
	ToolInfos() []*schema.ToolInfo
}

type Orchestrator interface {
	Handle(ctx context.Context, req ChatRequest, sink Sink) (ChatResponse, error)
}
