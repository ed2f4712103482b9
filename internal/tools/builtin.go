package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/huraaa/Agent-one/internal/docindex"
	"github.com/huraaa/Agent-one/internal/fetch"
	"github.com/huraaa/Agent-one/internal/memory"
	"github.com/huraaa/Agent-one/internal/search"
	"github.com/huraaa/Agent-one/internal/sentiment"
)

// DefaultRetrieveK is used when neither the call nor the profile sets k.
const DefaultRetrieveK = 3

// AllowedPreferences are the profile keys save_preference may write.
var AllowedPreferences = []string{"name", "citation_style", "default_k"}

// ProfileStore is the memory collaborator. *memory.Store satisfies it.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (map[string]string, error)
	SetProfile(ctx context.Context, userID, key, value string) error
	AddFact(ctx context.Context, userID, text string) (*memory.Fact, error)
}

// Retriever answers document queries. *docindex.Index satisfies it.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]docindex.Hit, error)
}

// Deps are the backends the built-in tools use. A nil backend leaves
// its tool registered but answering with an error result.
type Deps struct {
	Memory ProfileStore
	UserID string // used when the context carries none

	Docs        Retriever
	MaxDistance float64 // retrieval confidence threshold
	DefaultK    int

	Search    *search.Manager
	Sentiment sentiment.Classifier

	// Fetcher enables fetch_url when set.
	Fetcher *fetch.Fetcher

	Logger *slog.Logger
}

// New builds the registry with the built-in tools.
func New(deps Deps) *Registry {
	if deps.DefaultK <= 0 {
		deps.DefaultK = DefaultRetrieveK
	}
	if deps.MaxDistance <= 0 {
		deps.MaxDistance = 0.25
	}
	if deps.UserID == "" {
		deps.UserID = "default"
	}

	r := NewRegistry(deps.Logger)
	b := &builtins{deps: deps}

	r.Register(&Tool{
		Name:        "calculator",
		Description: "Evaluate arithmetic expressions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic using digits, + - * / ( ) and decimal points.",
				},
			},
			"required": []string{"expression"},
		},
		Handler: handleCalculator,
	})

	r.Register(&Tool{
		Name:        "retrieve_docs",
		Description: "Retrieve top-k relevant chunks from local documents. Returns confident=false when nothing close enough was found.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"k":     map[string]any{"type": "integer", "default": DefaultRetrieveK},
			},
			"required": []string{"query"},
		},
		Handler: b.handleRetrieveDocs,
	})

	var webSearch Handler = func(context.Context, map[string]any) (Result, error) {
		return nil, &UnavailableError{Tool: "web_search", Reason: "no web backend; set TAVILY_API_KEY, BRAVE_API_KEY or SEARXNG_URL"}
	}
	if deps.Search != nil && deps.Search.Configured() {
		webSearch = search.ToolHandler(deps.Search)
	}
	r.Register(&Tool{
		Name:        "web_search",
		Description: "Search the web and return top results with titles and URLs.",
		Parameters:  search.ToolDefinition(),
		Handler:     webSearch,
	})

	r.Register(&Tool{
		Name:        "sentiment",
		Description: "Classify the sentiment of short text as positive or negative.",
		Parameters:  sentiment.ToolDefinition(),
		Handler:     sentiment.ToolHandler(deps.Sentiment),
	})

	r.Register(&Tool{
		Name:        "read_profile",
		Description: "Read user profile key-values.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     b.handleReadProfile,
	})

	r.Register(&Tool{
		Name:        "save_preference",
		Description: "Persist a user preference (allowed: " + strings.Join(AllowedPreferences, ", ") + ").",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string"},
				"value": map[string]any{"type": "string"},
			},
			"required": []string{"key", "value"},
		},
		Handler: b.handleSavePreference,
	})

	r.Register(&Tool{
		Name:        "remember_fact",
		Description: "Store a short factual note about the user for future sessions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"fact": map[string]any{"type": "string"},
			},
			"required": []string{"fact"},
		},
		Handler: b.handleRememberFact,
	})

	if deps.Fetcher != nil {
		r.Register(&Tool{
			Name:        "fetch_url",
			Description: "Fetch a web page and return its readable text.",
			Parameters:  fetch.ToolDefinition(),
			Handler:     fetch.ToolHandler(deps.Fetcher),
		})
	}

	return r
}

type builtins struct {
	deps Deps
}

func (b *builtins) userID(ctx context.Context) string {
	return UserIDFromContext(ctx, b.deps.UserID)
}

func (b *builtins) handleRetrieveDocs(ctx context.Context, args map[string]any) (Result, error) {
	if b.deps.Docs == nil {
		return nil, &UnavailableError{Tool: "retrieve_docs", Reason: "no document index"}
	}
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	k := b.retrieveK(ctx, args)
	hits, err := b.deps.Docs.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []docindex.Hit{}
	}

	var top *float64
	if len(hits) > 0 {
		top = hits[0].Score
	}
	return Result{
		"results":   hits,
		"confident": docindex.Confident(hits, b.deps.MaxDistance),
		"top_score": top,
	}, nil
}

// retrieveK picks k from the call, then the profile's default_k, then
// the configured default.
func (b *builtins) retrieveK(ctx context.Context, args map[string]any) int {
	if k, ok := args["k"].(float64); ok && k >= 1 {
		return int(k)
	}
	if b.deps.Memory != nil {
		if profile, err := b.deps.Memory.Profile(ctx, b.userID(ctx)); err == nil {
			if k, err := strconv.Atoi(strings.TrimSpace(profile["default_k"])); err == nil && k >= 1 {
				return k
			}
		}
	}
	return b.deps.DefaultK
}

func (b *builtins) handleReadProfile(ctx context.Context, _ map[string]any) (Result, error) {
	if b.deps.Memory == nil {
		return nil, &UnavailableError{Tool: "read_profile", Reason: "no memory store"}
	}
	profile, err := b.deps.Memory.Profile(ctx, b.userID(ctx))
	if err != nil {
		return nil, err
	}
	return Result{"profile": profile}, nil
}

func (b *builtins) handleSavePreference(ctx context.Context, args map[string]any) (Result, error) {
	if b.deps.Memory == nil {
		return nil, &UnavailableError{Tool: "save_preference", Reason: "no memory store"}
	}
	rawKey, _ := args["key"].(string)
	key := strings.ToLower(strings.TrimSpace(rawKey))
	if !isAllowedPreference(key) {
		return ErrorResult("key not allowed"), nil
	}
	value, ok := stringValue(args["value"])
	if !ok {
		return nil, fmt.Errorf("value is required")
	}
	if err := b.deps.Memory.SetProfile(ctx, b.userID(ctx), key, value); err != nil {
		return nil, err
	}
	return Result{"ok": true}, nil
}

func (b *builtins) handleRememberFact(ctx context.Context, args map[string]any) (Result, error) {
	if b.deps.Memory == nil {
		return nil, &UnavailableError{Tool: "remember_fact", Reason: "no memory store"}
	}
	fact, _ := args["fact"].(string)
	if _, err := b.deps.Memory.AddFact(ctx, b.userID(ctx), fact); err != nil {
		return nil, err
	}
	return Result{"ok": true}, nil
}

func isAllowedPreference(key string) bool {
	for _, k := range AllowedPreferences {
		if k == key {
			return true
		}
	}
	return false
}

// stringValue renders a JSON scalar as profile text; 5 and "5" are
// stored alike.
func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
