package prompt

import (
	_ "embed"
	"strings"
	"time"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const (
	KeyCurrentTime = "current_time"
	KeyMemory      = "memory"
	KeyHistory     = "history"

	currentTimeLayout = "Monday, 2 January 2006 15:04 MST (2006-01-02T15:04:05Z07:00)"
)

//go:embed template/assistant.txt
var assistantRaw string

// System returns the raw system prompt with its {current_time} and {memory} placeholders.
func System() string {
	return strings.TrimSpace(assistantRaw)
}

// NewChatTemplate renders the system prompt and appends the conversation held under KeyHistory.
func NewChatTemplate() einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(System()),
		schema.MessagesPlaceholder(KeyHistory, false),
	)
}

// Variables builds the template input. now should already be in the booking time zone.
func Variables(now time.Time, memory string, history []*schema.Message) map[string]any {
	memory = strings.TrimSpace(memory)
	if memory == "" {
		memory = "Nothing remembered yet."
	}
	if history == nil {
		history = []*schema.Message{}
	}
	return map[string]any{
		KeyCurrentTime: now.Format(currentTimeLayout),
		KeyMemory:      memory,
		KeyHistory:     history,
	}
}
