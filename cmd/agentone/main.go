// Agentone is a tool-using question-answering agent.
//
// It sends a goal to a chat model together with a fixed set of local
// tools (calculator, document retrieval, web search, sentiment, profile
// and fact memory), runs the tools the model asks for and returns the
// final answer. Configuration is loaded from an optional YAML file (see
// [config.DefaultSearchPaths]) and overridden by environment variables.
//
// Run agentone without arguments for the command list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/huraaa/Agent-one/internal/buildinfo"
	"github.com/huraaa/Agent-one/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the global flags shared by subcommands.
type options struct {
	configPath string
	output     string
	rounds     int
}

// command is one subcommand. minArgs is checked before run is called.
type command struct {
	name    string
	args    string
	summary string
	minArgs int
	run     func(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error
}

var commands = []command{
	{"ask", "<goal>", "Answer a single goal", 1,
		func(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
			return runAsk(ctx, stdout, stderr, opts, strings.Join(args, " "))
		}},
	{"ingest", "<file>...", "Index PDF, Markdown or text files", 1, runIngest},
	{"profile", "[set k v|delete k]", "Show or edit the user profile", 0, runProfile},
	{"facts", "[add text]", "List or add remembered facts", 0, runFacts},
	{"cache", "[clear]", "Count or clear cached answers", 0, runCache},
	{"usage", "[model|role|user]", "Show token spend, optionally grouped", 0, runUsage},
	{"eval", "[cases.yaml]", "Run the evaluation suite", 0,
		func(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			return runEval(ctx, stdout, stderr, opts, path)
		}},
	{"version", "", "Show version information", 0,
		func(_ context.Context, stdout, _ io.Writer, opts options, _ []string) error {
			return runVersion(stdout, opts.output)
		}},
}

// run parses global flags up to the first non-flag argument, which
// names the command; everything after it belongs to the command.
// Command output goes to stdout and logs to stderr.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var opts options
	fs := flag.NewFlagSet("agentone", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "")
	fs.StringVar(&opts.output, "o", "text", "")
	fs.StringVar(&opts.output, "output", "text", "")
	fs.IntVar(&opts.rounds, "rounds", 0, "")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return printUsage(stdout)
		}
		return err
	}
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.output)
	}
	if fs.NArg() == 0 {
		return printUsage(stdout)
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if len(rest) < c.minArgs {
			return fmt.Errorf("usage: agentone %s %s", c.name, c.args)
		}
		return c.run(ctx, stdout, stderr, opts, rest)
	}
	return fmt.Errorf("unknown command: %s", name)
}

func runVersion(w io.Writer, output string) error {
	info := buildinfo.Info()
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	var b strings.Builder
	b.WriteString("agentone - tool-using question answering agent\n\n")
	b.WriteString("Usage: agentone [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-28s %s\n", strings.TrimSpace(c.name+" "+c.args), c.summary)
	}
	b.WriteString("\nFlags:\n")
	b.WriteString("  -config <path>    Config file (default: first of ./agentone.yaml, ./config.yaml,\n")
	b.WriteString("                    ~/.config/agentone/config.yaml, /etc/agentone/config.yaml)\n")
	b.WriteString("  -o, -output fmt   text (default) or json\n")
	b.WriteString("  -rounds n         Round budget for ask (default: agent.max_rounds)\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// loadConfig finds and parses the config file, falling back to the
// built-in defaults when none exists and none was named. Environment
// overrides are applied last, then the result is validated.
func loadConfig(explicit string) (*config.Config, string, error) {
	var cfg *config.Config
	cfgPath, err := config.FindConfig(explicit)
	switch {
	case err == nil:
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	case explicit != "":
		return nil, "", err
	default:
		cfg, cfgPath = config.Default(), ""
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfgPath, nil
}
