package agent

import (
	"fmt"

	"github.com/huraaa/Agent-one/internal/llm"
)

// Conversation is the ordered message history of one run. It is created
// per run and discarded when the run returns.
type Conversation []llm.Message

// Validate checks tool-call threading: each tool message must answer the
// next unanswered call of the immediately preceding assistant message,
// in call order, and every call must be answered before any other
// message follows.
func (c Conversation) Validate() error {
	var pending []llm.ToolCall
	for i, m := range c {
		if m.Role == llm.RoleTool {
			if len(pending) == 0 {
				return fmt.Errorf("message %d: tool result %q has no pending tool call", i, m.ToolCallID)
			}
			if m.ToolCallID != pending[0].ID {
				return fmt.Errorf("message %d: tool result for %q, expected %q", i, m.ToolCallID, pending[0].ID)
			}
			pending = pending[1:]
			continue
		}
		if len(pending) > 0 {
			return fmt.Errorf("message %d: %d tool call(s) left unanswered", i, len(pending))
		}
		if m.Role == llm.RoleAssistant {
			pending = m.ToolCalls
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("conversation ends with %d unanswered tool call(s)", len(pending))
	}
	return nil
}
