package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/eval"
	"github.com/huraaa/Agent-one/internal/ingest"
	"github.com/huraaa/Agent-one/internal/tracing"
	"github.com/huraaa/Agent-one/internal/usage"
)

// shutdownTimeout bounds flushing telemetry and closing stores.
const shutdownTimeout = 5 * time.Second

// withApp opens the app, runs fn and closes whatever fn opened.
func withApp(stderr io.Writer, opts options, fn func(a *app) error) (err error) {
	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(ctx); cerr != nil {
			a.logger.Warn("shutdown incomplete", "error", cerr)
		}
	}()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runAsk handles "agentone ask <goal>".
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, goal string) error {
	return withApp(stderr, opts, func(a *app) error {
		loop, err := a.agentLoop(ctx, "interactive")
		if err != nil {
			return err
		}
		rounds := opts.rounds
		if rounds <= 0 {
			rounds = a.cfg.Agent.MaxRounds
		}

		ctx := tracing.WithRequestID(ctx, tracing.NewRequestID())
		res, err := loop.Run(ctx, goal, rounds)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}

		if sum, err := a.usage.Totals(ctx, usage.Filter{RequestID: res.RequestID}); err == nil && sum.TotalRecords > 0 {
			a.logger.Info("request usage",
				"request_id", res.RequestID,
				"model_calls", sum.TotalRecords,
				"input_tokens", sum.TotalInputTokens,
				"output_tokens", sum.TotalOutputTokens,
				"cost_usd", sum.TotalCostUSD,
			)
		}

		if opts.output == "json" {
			return writeJSON(stdout, map[string]any{
				"answer":     res.Answer,
				"request_id": res.RequestID,
				"rounds":     res.Rounds,
				"cache_hit":  res.CacheHit,
				"stopped":    res.Stopped,
				"blocked":    res.Blocked,
			})
		}
		fmt.Fprintln(stdout, res.Answer)
		return nil
	})
}

// runIngest handles "agentone ingest <file>...".
func runIngest(ctx context.Context, stdout, stderr io.Writer, opts options, paths []string) error {
	return withApp(stderr, opts, func(a *app) error {
		idx, err := a.docIndex()
		if err != nil {
			return err
		}
		in := ingest.New(idx, a.cfg.Ingest.MaxChars, a.cfg.Ingest.Overlap, a.logger.With("component", "ingest"))
		stats, err := in.Files(ctx, paths)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		total, err := idx.Count(ctx)
		if err != nil {
			return err
		}

		if opts.output == "json" {
			return writeJSON(stdout, map[string]any{"stats": stats, "total_chunks": total})
		}
		fmt.Fprintf(stdout, "Indexed %d chunks from %d files (%d in index)\n", stats.Written, stats.Files, total)
		return nil
	})
}

// runProfile handles "agentone profile", "profile set <k> <v>" and
// "profile delete <k>". Keys are stored lower-cased; unlike the
// save_preference tool the CLI is not limited to an allow-list.
func runProfile(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	return withApp(stderr, opts, func(a *app) error {
		mem, err := a.memoryStore()
		if err != nil {
			return err
		}
		user := a.cfg.UserID

		switch {
		case len(args) == 0:
		case args[0] == "set" && len(args) >= 3:
			key := strings.ToLower(strings.TrimSpace(args[1]))
			if err := mem.SetProfile(ctx, user, key, strings.Join(args[2:], " ")); err != nil {
				return err
			}
		case args[0] == "delete" && len(args) == 2:
			if err := mem.DeleteProfile(ctx, user, strings.ToLower(strings.TrimSpace(args[1]))); err != nil {
				return err
			}
		default:
			return fmt.Errorf("usage: agentone profile [set <key> <value> | delete <key>]")
		}

		profile, err := mem.Profile(ctx, user)
		if err != nil {
			return err
		}
		if opts.output == "json" {
			return writeJSON(stdout, profile)
		}
		keys := make([]string, 0, len(profile))
		for k := range profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "%s=%s\n", k, profile[k])
		}
		return nil
	})
}

// factsListLimit is how many facts "agentone facts" shows.
const factsListLimit = 20

// runFacts handles "agentone facts" and "facts add <text>".
func runFacts(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	return withApp(stderr, opts, func(a *app) error {
		mem, err := a.memoryStore()
		if err != nil {
			return err
		}
		user := a.cfg.UserID

		switch {
		case len(args) == 0:
		case args[0] == "add" && len(args) >= 2:
			if _, err := mem.AddFact(ctx, user, strings.Join(args[1:], " ")); err != nil {
				return err
			}
		default:
			return fmt.Errorf("usage: agentone facts [add <text>]")
		}

		facts, err := mem.RecentFacts(ctx, user, factsListLimit)
		if err != nil {
			return err
		}
		if opts.output == "json" {
			return writeJSON(stdout, facts)
		}
		for _, f := range facts {
			fmt.Fprintf(stdout, "%s  %s\n", f.CreatedAt.Format(time.DateTime), f.Text)
		}
		return nil
	})
}

// runCache handles "agentone cache" and "cache clear".
func runCache(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	return withApp(stderr, opts, func(a *app) error {
		c, err := a.cacheStore()
		if err != nil {
			return err
		}
		switch {
		case len(args) == 0:
			n, err := c.Len(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%d cached answers\n", n)
		case len(args) == 1 && args[0] == "clear":
			n, err := c.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Removed %d cached answers\n", n)
		default:
			return fmt.Errorf("usage: agentone cache [clear]")
		}
		return nil
	})
}

// runEval handles "agentone eval [cases.yaml]". The report is printed
// as JSON.
func runEval(ctx context.Context, stdout, stderr io.Writer, opts options, casesPath string) error {
	return withApp(stderr, opts, func(a *app) error {
		cases := eval.DefaultCases()
		if casesPath != "" {
			loaded, err := eval.LoadCases(casesPath)
			if err != nil {
				return err
			}
			cases = loaded
		}

		loop, err := a.agentLoop(ctx, "eval")
		if err != nil {
			return err
		}
		h := &eval.Harness{
			Agent:      loop,
			MaxRounds:  a.cfg.Agent.MaxRounds,
			Embedder:   a.embedder(),
			Docs:       a.index,
			Judge:      a.chatClient(),
			JudgeModel: cmp.Or(a.cfg.Eval.JudgeModel, a.cfg.Model),
			Logger:     a.logger,
		}
		report, err := h.Run(ctx, cases)
		if err != nil {
			return fmt.Errorf("eval: %w", err)
		}

		if opts.output == "json" {
			return writeJSON(stdout, report)
		}
		for _, r := range report.Rows {
			status := "PASS"
			if !r.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(stdout, "%s  %-12s %6.2fs  %s\n", status, r.ID, r.LatencyS, r.Error)
		}
		return writeJSON(stdout, report.Summary)
	})
}

// runUsage handles "agentone usage [model|role|user]". Without a
// dimension it prints overall totals.
func runUsage(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	return withApp(stderr, opts, func(a *app) error {
		u, err := a.usageStore()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			sum, err := u.Totals(ctx, usage.Filter{})
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(stdout, sum)
			}
			fmt.Fprintf(stdout, "%d calls, %d input tokens, %d output tokens, $%.4f\n",
				sum.TotalRecords, sum.TotalInputTokens, sum.TotalOutputTokens, sum.TotalCostUSD)
			return nil
		}

		dims := map[string]usage.Dimension{"model": usage.ByModel, "role": usage.ByRole, "user": usage.ByUser}
		dim, ok := dims[args[0]]
		if !ok || len(args) > 1 {
			return fmt.Errorf("usage: agentone usage [model|role|user]")
		}
		rows, err := u.Breakdown(ctx, usage.Filter{}, dim)
		if err != nil {
			return err
		}
		if opts.output == "json" {
			return writeJSON(stdout, rows)
		}
		keys := make([]string, 0, len(rows))
		for k := range rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r := rows[k]
			fmt.Fprintf(stdout, "%-24s %6d calls %10d in %10d out  $%.4f\n",
				k, r.TotalRecords, r.TotalInputTokens, r.TotalOutputTokens, r.TotalCostUSD)
		}
		return nil
	})
}
