package contract

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Turn is one entry of a conversation as exchanged with clients. Tool turns
// carry the structured result the presentation layer renders.
type Turn struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"toolCalls,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	ToolName   string      `json:"toolName,omitempty"`
	Result     *ToolResult `json:"result,omitempty"`
}

type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Turns     []Turn `json:"turns"`
}

type ChatResponse struct {
	SessionID string          `json:"sessionId"`
	Reply     string          `json:"reply"`
	Turns     []Turn          `json:"turns"`
	Error     *OperationError `json:"error,omitempty"`
}

// Sink receives turns as soon as the orchestrator produces them.
type Sink func(Turn)

type ToolResult struct {
	Tool   string          `json:"tool"`
	Result any             `json:"result,omitempty"`
	Error  *OperationError `json:"error,omitempty"`
}

func (r ToolResult) OK() bool {
	return r.Error == nil
}
