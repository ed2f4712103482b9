package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/httpkit"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local Ollama server over its native /api/chat
// endpoint.
type Ollama struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// NewOllama returns a client for the server at base, or
// DefaultOllamaURL when base is empty.
func NewOllama(base string, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	if base == "" {
		base = DefaultOllamaURL
	}
	return &Ollama{
		base: strings.TrimRight(base, "/"),
		// Tool-heavy prompts on CPU-bound models are slow. No transport
		// retries: callers wrap Chat in their own retry policy.
		http:   httpkit.NewClient(httpkit.WithTimeout(5 * time.Minute)),
		logger: logger.With("provider", "ollama"),
	}
}

// wireCall is a tool call as Ollama encodes it: arguments are an
// object and there is no id.
type wireCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []wireCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"` // tool results only
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []wireMessage    `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type chatReply struct {
	Model      string      `json:"model"`
	Message    wireMessage `json:"message"`
	PromptEval int         `json:"prompt_eval_count"`
	Eval       int         `json:"eval_count"`
}

// Chat runs one non-streaming completion. Tool calls get positional
// ids ("call_0", "call_1", ...) since the server assigns none.
func (o *Ollama) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	var reply chatReply
	in := chatRequest{Model: model, Messages: toWire(messages), Tools: tools}
	if err := o.call(ctx, http.MethodPost, "/api/chat", in, &reply); err != nil {
		return nil, err
	}

	calls := reply.Message.ToolCalls
	content := reply.Message.Content
	if len(calls) == 0 {
		// smaller models often write the call into the content instead
		if found := textToolCalls(content, declared(tools)); len(found) > 0 {
			calls, content = found, ""
		}
	}

	out := &ChatResponse{
		Model:        reply.Model,
		Message:      Message{Role: RoleAssistant, Content: content},
		InputTokens:  reply.PromptEval,
		OutputTokens: reply.Eval,
	}
	for i, c := range calls {
		args := c.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode arguments of %s: %w", c.Function.Name, err)
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:       "call_" + fmt.Sprint(i),
			Type:     "function",
			Function: ToolFunction{Name: c.Function.Name, Arguments: string(raw)},
		})
	}
	return out, nil
}

// Ping lists local models to confirm the server answers.
func (o *Ollama) Ping(ctx context.Context) error {
	return o.call(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// call sends in as JSON (when non-nil) and decodes the reply into out
// (when non-nil).
func (o *Ollama) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ollama: encode %s: %w", path, err)
		}
		o.logger.Log(ctx, LevelTrace, "request", "path", path, "body", string(data))
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.base+path, body)
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama %s: decode: %w", path, err)
	}
	return nil
}

// toWire converts messages to the Ollama shape. Arguments that do not
// decode to an object are sent as {}. Tool results carry the name of
// the call they answer, since Ollama has no call ids.
func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	callNames := map[string]string{}
	for i, m := range messages {
		out[i] = wireMessage{Role: m.Role, Content: m.Content}
		if m.Role == RoleTool {
			out[i].ToolName = callNames[m.ToolCallID]
		}
		for _, tc := range m.ToolCalls {
			callNames[tc.ID] = tc.Function.Name
			var c wireCall
			c.Function.Name = tc.Function.Name
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &c.Function.Arguments)
			if c.Function.Arguments == nil {
				c.Function.Arguments = map[string]any{}
			}
			out[i].ToolCalls = append(out[i].ToolCalls, c)
		}
	}
	return out
}

// declared returns the function names in a tool schema.
func declared(tools []map[string]any) map[string]bool {
	names := make(map[string]bool, len(tools))
	for _, def := range tools {
		if name, _, _ := toolFunction(def); name != "" {
			names[name] = true
		}
	}
	return names
}

// textToolCalls recovers calls a model printed as text. Accepted
// shapes are {"name":..,"arguments":{..}}, an array of those, or
// either one inside <tool_call> tags (closing tag optional). Calls to
// tools outside valid are dropped, so a JSON answer that happens to
// have a "name" key stays an answer.
func textToolCalls(content string, valid map[string]bool) []wireCall {
	const tagOpen, tagClose = "<tool_call>", "</tool_call>"
	s := strings.TrimSpace(content)
	if i := strings.Index(s, tagOpen); i >= 0 {
		s = s[i+len(tagOpen):]
		if j := strings.Index(s, tagClose); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil
	}

	type printed struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	var list []printed
	if s[0] == '{' {
		var one printed
		if json.Unmarshal([]byte(s), &one) != nil {
			return nil
		}
		list = []printed{one}
	} else if json.Unmarshal([]byte(s), &list) != nil {
		return nil
	}

	var calls []wireCall
	for _, p := range list {
		if !valid[p.Name] {
			continue
		}
		var c wireCall
		c.Function.Name = p.Name
		c.Function.Arguments = p.Arguments
		calls = append(calls, c)
	}
	return calls
}
