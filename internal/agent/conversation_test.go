package agent

import (
	"testing"

	"github.com/huraaa/Agent-one/internal/llm"
)

func TestConversationValidate(t *testing.T) {
	sys := llm.Message{Role: llm.RoleSystem, Content: "s"}
	user := llm.Message{Role: llm.RoleUser, Content: "u"}
	asks := func(ids ...string) llm.Message {
		m := llm.Message{Role: llm.RoleAssistant}
		for _, id := range ids {
			m.ToolCalls = append(m.ToolCalls, llm.ToolCall{ID: id, Function: llm.ToolFunction{Name: "calculator"}})
		}
		return m
	}
	result := func(id string) llm.Message {
		return llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: "{}"}
	}
	answer := llm.Message{Role: llm.RoleAssistant, Content: "done"}

	tests := []struct {
		name    string
		conv    Conversation
		wantErr bool
	}{
		{"plain", Conversation{sys, user, answer}, false},
		{"paired", Conversation{sys, user, asks("a", "b"), result("a"), result("b"), answer}, false},
		{"two rounds", Conversation{sys, user, asks("a"), result("a"), asks("b"), result("b"), answer}, false},
		{"out of order", Conversation{sys, user, asks("a", "b"), result("b"), result("a")}, true},
		{"wrong id", Conversation{sys, user, asks("a"), result("x")}, true},
		{"orphan result", Conversation{sys, user, result("a")}, true},
		{"unanswered before next turn", Conversation{sys, user, asks("a", "b"), result("a"), answer}, true},
		{"unanswered at end", Conversation{sys, user, asks("a")}, true},
		{"result for earlier turn", Conversation{sys, user, asks("a"), result("a"), answer, result("a")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conv.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
