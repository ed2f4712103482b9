// Package prompts contains the prompt templates the agent sends to models.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and can be validated by tests.
//
// Convention: each prompt category gets its own file (system.go, judge.go)
// with an exported function that accepts the dynamic parts and returns the
// fully interpolated prompt string.
package prompts
