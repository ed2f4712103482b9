package prompts

import (
	"encoding/json"
	"fmt"
)

// NotFoundAnswer is the reply the model is told to give when document
// retrieval is not confident.
const NotFoundAnswer = "Not found in the provided documents."

// systemTemplate is the planner prompt. Verbs: version, request id,
// profile JSON, facts JSON.
const systemTemplate = `[version:%s][request_id:%s]
Planner mode. Decide steps and call tools as needed.
- Use retrieve_docs for local PDFs.
- Use web_search for internet research.
- Use calculator for arithmetic.
Cite sources (local=paths, web=URLs). If insufficient info, say so.
If retrieve_docs returns confident=false, answer: '` + NotFoundAnswer + `'
User profile: %s
Known user facts: %s
`

// System returns the planner system prompt with the user's profile and
// most recent facts embedded as context. Nil inputs render as empty
// JSON values so the prompt shape never changes.
func System(version, requestID string, profile map[string]string, facts []string) string {
	if profile == nil {
		profile = map[string]string{}
	}
	if facts == nil {
		facts = []string{}
	}
	return fmt.Sprintf(systemTemplate, version, requestID, compactJSON(profile), compactJSON(facts))
}

// compactJSON renders v for inclusion in a prompt. Maps come out with
// sorted keys, which keeps the prompt stable for a given profile.
func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
