package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/huraaa/Agent-one/internal/llm"
)

const classifyPrompt = `Classify the sentiment of the user's text as positive or negative.
Reply with only a JSON object: {"label": "positive" or "negative", "confidence": number between 0 and 1}.`

// LLMClassifier asks a chat model to classify text.
type LLMClassifier struct {
	client llm.Client
	model  string
}

// NewLLM creates a model-backed classifier.
func NewLLM(client llm.Client, model string) *LLMClassifier {
	return &LLMClassifier{client: client, model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if c.client == nil {
		return Result{}, ErrNotConfigured
	}
	resp, err := c.client.Chat(ctx, c.model, []llm.Message{
		{Role: llm.RoleSystem, Content: classifyPrompt},
		{Role: llm.RoleUser, Content: text},
	}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	content := strings.TrimSpace(resp.Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw labelScore
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return Result{}, fmt.Errorf("classify: model returned %q: %w", resp.Message.Content, err)
	}
	return pick([]labelScore{raw})
}

// ToolHandler returns the sentiment tool handler.
func ToolHandler(c Classifier) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		if c == nil {
			return nil, ErrNotConfigured
		}
		text, _ := args["text"].(string)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("sentiment: text is required")
		}
		res, err := c.Classify(ctx, text)
		if err != nil {
			return nil, err
		}
		return map[string]any{"label": res.Label, "confidence": res.Confidence}, nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the sentiment tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to classify.",
			},
		},
		"required": []string{"text"},
	}
}
