package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v2"
)

// DefaultModerationModel is the OpenAI moderation model.
const DefaultModerationModel = "omni-moderation-latest"

// OpenAIModerator uses the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIModerator wraps an already configured SDK client.
func NewOpenAIModerator(client *openai.Client, model string) *OpenAIModerator {
	if model == "" {
		model = DefaultModerationModel
	}
	return &OpenAIModerator{client: client, model: model}
}

func (m *OpenAIModerator) Moderate(ctx context.Context, text string) (Verdict, error) {
	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(m.model),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return Verdict{}, fmt.Errorf("openai moderation: empty results")
	}

	r := resp.Results[0]
	v := Verdict{Flagged: r.Flagged}
	if r.Flagged {
		var cats map[string]bool
		if err := json.Unmarshal([]byte(r.Categories.RawJSON()), &cats); err == nil {
			for name, on := range cats {
				if on {
					v.Categories = append(v.Categories, name)
				}
			}
			sort.Strings(v.Categories)
		}
	}
	return v, nil
}
