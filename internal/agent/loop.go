// Package agent implements the core agent loop: a bounded sequence of
// model calls in which the model may request local tools, whose results
// are threaded back into the conversation until it produces a final
// answer or the round budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/cache"
	"github.com/huraaa/Agent-one/internal/config"
	"github.com/huraaa/Agent-one/internal/guard"
	"github.com/huraaa/Agent-one/internal/llm"
	"github.com/huraaa/Agent-one/internal/memory"
	"github.com/huraaa/Agent-one/internal/prompts"
	"github.com/huraaa/Agent-one/internal/retry"
	"github.com/huraaa/Agent-one/internal/tools"
	"github.com/huraaa/Agent-one/internal/tracing"
	"github.com/huraaa/Agent-one/internal/usage"
)

// StoppedAnswer is returned when the round budget is exhausted without a
// tool-free reply. It is a normal termination, not an error.
const StoppedAnswer = "Stopped without final answer."

// DefaultMaxRounds bounds a run when the caller does not.
const DefaultMaxRounds = 6

// AnswerCache stores final answers. *cache.Store satisfies it.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, answer string) error
}

// ContextStore supplies the profile and facts embedded in the system
// prompt. *memory.Store satisfies it.
type ContextStore interface {
	Profile(ctx context.Context, userID string) (map[string]string, error)
	RecentFacts(ctx context.Context, userID string, n int) ([]memory.Fact, error)
}

// Gate screens the goal before the loop starts. *guard.Guard satisfies it.
type Gate interface {
	Check(ctx context.Context, text string) guard.Decision
}

// Dispatcher exposes the tool schema and runs tool calls.
// *tools.Registry satisfies it.
type Dispatcher interface {
	Schema() []map[string]any
	Dispatch(ctx context.Context, name, argsJSON string) tools.Result
}

// UsageRecorder persists token usage. *usage.Store satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Config holds the per-loop settings.
type Config struct {
	Model    string
	Provider string // recorded with usage
	Version  string // embedded in the system prompt
	UserID   string

	// RecentFacts is how many facts go into the system prompt.
	RecentFacts int
	Retry       retry.Policy
	Pricing     map[string]config.PricingEntry
	// UsageRole tags usage records ("interactive", "eval").
	UsageRole string
}

// Deps are the loop's collaborators. LLM and Tools are required; the
// rest are optional and skipped when nil.
type Deps struct {
	LLM    llm.Client
	Tools  Dispatcher
	Cache  AnswerCache
	Memory ContextStore
	Guard  Gate
	Usage  UsageRecorder
	Tracer *tracing.Tracer
	Logger *slog.Logger
}

// Result is the outcome of one run.
type Result struct {
	Answer    string
	RequestID string
	Rounds    int // model calls made

	CacheHit bool
	Stopped  bool // round budget exhausted
	Blocked  bool // refused by the safety gate
	Reason   string

	Conversation Conversation
}

// Loop is the core agent execution loop.
type Loop struct {
	cfg  Config
	deps Deps
}

// NewLoop creates a new agent loop.
func NewLoop(cfg Config, deps Deps) *Loop {
	if cfg.UserID == "" {
		cfg.UserID = "default"
	}
	if cfg.RecentFacts == 0 {
		cfg.RecentFacts = 5
	}
	if cfg.UsageRole == "" {
		cfg.UsageRole = "interactive"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "agent")
	return &Loop{cfg: cfg, deps: deps}
}

// Model returns the chat model the loop calls.
func (l *Loop) Model() string {
	return l.cfg.Model
}

// Run answers goal within maxRounds model calls (values below 1 mean
// one round). The returned error is non-nil only for infrastructure
// faults: the model call failing after retries, or the profile store
// being unreadable. A refusal, a cache hit and an exhausted budget are
// all normal results.
func (l *Loop) Run(ctx context.Context, goal string, maxRounds int) (*Result, error) {
	if maxRounds < 1 {
		maxRounds = 1
	}
	reqID := tracing.RequestID(ctx)
	if reqID == "" {
		reqID = tracing.NewRequestID()
		ctx = tracing.WithRequestID(ctx, reqID)
	}
	ctx = tools.WithUserID(ctx, l.cfg.UserID)

	res := &Result{RequestID: reqID}

	if l.deps.Guard != nil {
		d := l.deps.Guard.Check(ctx, goal)
		if d.Blocked {
			l.deps.Tracer.Event(ctx, "guard.blocked", "reason", d.Reason)
			res.Answer = d.Refusal()
			res.Blocked = true
			res.Reason = d.Reason
			return res, nil
		}
	}

	err := tracing.Run(ctx, l.deps.Tracer, "agent.run", func(ctx context.Context) error {
		return l.run(ctx, goal, maxRounds, res)
	}, "model", l.cfg.Model, "user_goal", goal)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Loop) run(ctx context.Context, goal string, maxRounds int, res *Result) error {
	profile, facts, err := l.userContext(ctx)
	if err != nil {
		return err
	}

	key := cache.MakeKey(l.cfg.Model, goal, profile)
	if l.deps.Cache != nil {
		answer, found, err := l.deps.Cache.Get(ctx, key)
		switch {
		case err != nil:
			l.deps.Logger.Warn("cache read failed", "request_id", res.RequestID, "error", err)
		case found:
			l.deps.Tracer.Event(ctx, "cache.hit")
			res.Answer = answer
			res.CacheHit = true
			return nil
		}
	}

	conv := Conversation{
		{Role: llm.RoleSystem, Content: prompts.System(l.cfg.Version, res.RequestID, profile, facts)},
		{Role: llm.RoleUser, Content: goal},
	}
	schema := l.deps.Tools.Schema()

	for round := 1; round <= maxRounds; round++ {
		res.Rounds = round

		resp, err := l.callModel(ctx, conv, schema, round)
		if err != nil {
			l.deps.Logger.Error("model call failed", "request_id", res.RequestID, "round", round, "error", err)
			return err
		}

		if resp.HasToolCalls() {
			msg := resp.Message
			msg.Role = llm.RoleAssistant
			conv = append(conv, msg)
			l.deps.Tracer.Event(ctx, "agent.tool_calls", "round", round, "calls", callSummary(msg.ToolCalls))

			for _, tc := range msg.ToolCalls {
				out := l.runTool(ctx, tc)
				conv = append(conv, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: tc.ID,
					Content:    tools.Encode(out),
				})
			}
			continue
		}

		conv = append(conv, llm.Message{Role: llm.RoleAssistant, Content: resp.Message.Content})
		res.Conversation = conv
		res.Answer = strings.TrimSpace(resp.Message.Content)

		if l.deps.Cache != nil {
			if err := l.deps.Cache.Set(ctx, key, res.Answer); err != nil {
				l.deps.Logger.Warn("cache write failed", "request_id", res.RequestID, "error", err)
			} else {
				l.deps.Tracer.Event(ctx, "cache.store")
			}
		}
		return nil
	}

	res.Conversation = conv
	res.Answer = StoppedAnswer
	res.Stopped = true
	l.deps.Tracer.Event(ctx, "agent.stopped", "rounds", maxRounds)
	return nil
}

// userContext loads the profile snapshot and recent fact texts.
func (l *Loop) userContext(ctx context.Context) (map[string]string, []string, error) {
	if l.deps.Memory == nil {
		return map[string]string{}, nil, nil
	}
	profile, err := l.deps.Memory.Profile(ctx, l.cfg.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load profile: %w", err)
	}
	facts, err := l.deps.Memory.RecentFacts(ctx, l.cfg.UserID, l.cfg.RecentFacts)
	if err != nil {
		return nil, nil, fmt.Errorf("load facts: %w", err)
	}
	return profile, memory.FactTexts(facts), nil
}

// callModel makes one model call under the retry policy, inside a
// model.call span. Only the call itself is retried.
func (l *Loop) callModel(ctx context.Context, conv Conversation, schema []map[string]any, round int) (*llm.ChatResponse, error) {
	policy := l.cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		l.deps.Logger.Warn("model call failed, retrying",
			"request_id", tracing.RequestID(ctx),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	resp, err := tracing.Call(ctx, l.deps.Tracer, "model.call", func(ctx context.Context) (*llm.ChatResponse, error) {
		return retry.Do(ctx, policy, func(ctx context.Context) (*llm.ChatResponse, error) {
			return l.deps.LLM.Chat(ctx, l.cfg.Model, conv, schema)
		})
	}, "round", round, "model", l.cfg.Model)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, llm.ErrNoChoices
	}

	l.recordUsage(ctx, resp, round)
	return resp, nil
}

// runTool dispatches one call inside a tool.<name> span. Tool failures
// are data for the model, so the span itself always ends cleanly.
func (l *Loop) runTool(ctx context.Context, tc llm.ToolCall) tools.Result {
	ctx, span := l.deps.Tracer.Start(ctx, "tool."+tc.Function.Name, "tool", tc.Function.Name, "call_id", tc.ID)
	out := l.deps.Tools.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
	span.End(nil)

	if msg, ok := out["error"]; ok {
		l.deps.Logger.Debug("tool returned error result",
			"request_id", tracing.RequestID(ctx),
			"tool", tc.Function.Name,
			"error", msg,
		)
	}
	return out
}

func (l *Loop) recordUsage(ctx context.Context, resp *llm.ChatResponse, round int) {
	if l.deps.Usage == nil {
		return
	}
	model := resp.Model
	if model == "" {
		model = l.cfg.Model
	}
	rec := usage.Record{
		RequestID:    tracing.RequestID(ctx),
		UserID:       l.cfg.UserID,
		Model:        model,
		Provider:     l.cfg.Provider,
		Round:        round,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      usage.ComputeCost(model, resp.InputTokens, resp.OutputTokens, l.cfg.Pricing),
		Role:         l.cfg.UsageRole,
	}
	if err := l.deps.Usage.Record(ctx, rec); err != nil {
		l.deps.Logger.Warn("failed to record usage", "request_id", rec.RequestID, "error", err)
	}
}

// callSummary renders tool calls as "name(args)" for the log.
func callSummary(calls []llm.ToolCall) []string {
	out := make([]string, len(calls))
	for i, tc := range calls {
		out[i] = tc.Function.Name + "(" + tc.Function.Arguments + ")"
	}
	return out
}
