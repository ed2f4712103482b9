package prompts

import (
	"fmt"
	"strings"
)

const groundingJudgeTemplate = `Given the context, judge if the answer is supported by it.
Question: %s
Context:
%s
Answer:
%s
Respond with ONLY 'SUPPORTED' or 'UNSUPPORTED'.`

// GroundingJudge asks a secondary model whether answer is supported by
// the retrieved context.
func GroundingJudge(question, context, answer string) string {
	return fmt.Sprintf(groundingJudgeTemplate, question, context, answer)
}

// IsSupported interprets a judge reply. Anything not starting with
// SUPPORTED counts as unsupported.
func IsSupported(reply string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reply)), "SUPPORTED")
}
