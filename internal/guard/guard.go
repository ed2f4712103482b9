// Package guard screens user input before the agent runs: a fixed set
// of prompt-injection patterns OR a moderation verdict blocks it.
// Moderation failures never block.
package guard

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Block reasons.
const (
	ReasonInjection  = "prompt_injection"
	ReasonModeration = "moderation"
)

var injectionPatterns = []string{
	`\bignore (all|previous|earlier) (instructions|prompts)\b`,
	`\boverride\b.*\bsystem\b`,
	`\bdisregard\b.*\brules\b`,
	`\bprint\b.*\bsystem prompt\b`,
	`\bshow\b.*\bconfidential\b`,
	`\breturn\b.*\btool schema\b`,
}

var injectionRE = regexp.MustCompile(`(?i)` + strings.Join(injectionPatterns, "|"))

// DetectInjection reports whether text matches a known injection
// phrasing.
func DetectInjection(text string) bool {
	return injectionRE.MatchString(text)
}

// Verdict is a moderation service answer.
type Verdict struct {
	Flagged    bool
	Categories []string
}

// Moderator classifies text with an external moderation service.
type Moderator interface {
	Moderate(ctx context.Context, text string) (Verdict, error)
}

// Decision is the outcome of Check.
type Decision struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`

	// Categories flagged by moderation, when it flagged.
	Categories []string `json:"categories,omitempty"`
	// ModerationError is set when moderation failed and was ignored.
	ModerationError string `json:"moderation_error,omitempty"`
}

// Refusal is the answer returned in place of a run for blocked input.
func (d Decision) Refusal() string {
	return "Refused: " + d.Reason + "."
}

// Guard combines the injection check with an optional moderator.
type Guard struct {
	moderator Moderator
	logger    *slog.Logger
}

// New creates a guard. moderator may be nil to use patterns only.
func New(moderator Moderator, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{moderator: moderator, logger: logger}
}

// Check screens text. Both signals are always evaluated so the reason
// names every one that fired.
func (g *Guard) Check(ctx context.Context, text string) Decision {
	var (
		d       Decision
		reasons []string
	)
	if DetectInjection(text) {
		reasons = append(reasons, ReasonInjection)
	}

	if g.moderator != nil {
		v, err := g.moderator.Moderate(ctx, text)
		switch {
		case err != nil:
			d.ModerationError = err.Error()
			g.logger.Warn("moderation failed, allowing input", "error", err)
		case v.Flagged:
			reasons = append(reasons, ReasonModeration)
			d.Categories = v.Categories
		}
	}

	if len(reasons) > 0 {
		d.Blocked = true
		d.Reason = strings.Join(reasons, ",")
		g.logger.Info("input blocked", "reason", d.Reason, "categories", d.Categories)
	}
	return d
}
