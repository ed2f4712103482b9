package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools holds OpenAI-style function declarations:
	// {"type":"function","function":{"name","description","parameters"}}.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// toolFunction pulls name, description and parameters out of one
// function declaration. Malformed entries yield an empty name.
func toolFunction(def map[string]any) (name, description string, params map[string]any) {
	fn, _ := def["function"].(map[string]any)
	if fn == nil {
		return "", "", nil
	}
	name, _ = fn["name"].(string)
	description, _ = fn["description"].(string)
	params, _ = fn["parameters"].(map[string]any)
	return name, description, params
}
