package search

import (
	"context"
	"errors"
)

// DefaultCount is how many results web_search returns when the model
// does not pass k.
const DefaultCount = 5

// ToolHandler adapts mgr to the web_search tool. The result is
// {"results":[{title,url,snippet}]}.
func ToolHandler(mgr *Manager) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return nil, errors.New("query is required")
		}
		var opts Options
		if k, ok := args["k"].(float64); ok {
			opts.Count = min(int(k), 10)
		}
		opts.Language, _ = args["language"].(string)

		results, err := mgr.Search(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]any, len(results))
		for i, r := range results {
			items[i] = map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet}
		}
		return map[string]any{"results": items}, nil
	}
}

// ToolDefinition is the JSON Schema for web_search arguments.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"k": map[string]any{
				"type":        "integer",
				"description": "Number of results, at most 10 (default 5).",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "ISO 639-1 code such as en or de.",
			},
		},
		"required": []string{"query"},
	}
}
