package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
)

func TestSystemHasOnlyKnownPlaceholders(t *testing.T) {
	t.Parallel()

	sys := System()
	if !strings.Contains(sys, "Bingwa") {
		t.Fatal("system prompt is missing the assistant name")
	}
	for _, key := range []string{KeyCurrentTime, KeyMemory} {
		if !strings.Contains(sys, "{"+key+"}") {
			t.Fatalf("system prompt is missing placeholder %s", key)
		}
	}
	stripped := strings.NewReplacer("{"+KeyCurrentTime+"}", "", "{"+KeyMemory+"}", "").Replace(sys)
	if strings.ContainsAny(stripped, "{}") {
		t.Fatal("system prompt contains stray braces")
	}
}

func TestChatTemplateFormat(t *testing.T) {
	t.Parallel()

	eat := time.FixedZone("EAT", 3*60*60)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, eat)
	history := []*schema.Message{
		schema.UserMessage("I need a plumber tomorrow"),
	}

	msgs, err := NewChatTemplate().Format(context.Background(), Variables(now, "Customer: Jane", history))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != schema.System {
		t.Fatalf("expected system message first, got %s", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "Thursday, 15 October 2026 10:00 EAT") {
		t.Fatalf("system message missing current time: %s", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Customer: Jane") {
		t.Fatalf("system message missing memory: %s", msgs[0].Content)
	}
	if msgs[1].Role != schema.User || msgs[1].Content != "I need a plumber tomorrow" {
		t.Fatalf("unexpected history message: %+v", msgs[1])
	}
}

func TestVariablesDefaultsMemory(t *testing.T) {
	t.Parallel()

	vars := Variables(time.Now(), "  ", nil)
	if vars[KeyMemory] != "Nothing remembered yet." {
		t.Fatalf("unexpected memory default: %v", vars[KeyMemory])
	}
	if h, ok := vars[KeyHistory].([]*schema.Message); !ok || h == nil {
		t.Fatalf("history should be an empty slice, got %#v", vars[KeyHistory])
	}
}
