package fetch

import (
	"context"
)

// ToolHandler adapts f to the fetch_url tool contract.
func ToolHandler(f *Fetcher) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		target, _ := args["url"].(string)
		limit := 0
		if v, ok := args["max_chars"].(float64); ok {
			limit = int(v)
		}
		page, err := f.Fetch(ctx, target, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"url":       page.URL,
			"title":     page.Title,
			"content":   page.Text,
			"truncated": page.Truncated,
		}, nil
	}
}

// ToolDefinition is the JSON Schema for fetch_url arguments.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page to download. A bare host is fetched over https.",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Upper bound on returned characters (default 8000).",
			},
		},
		"required": []string{"url"},
	}
}
