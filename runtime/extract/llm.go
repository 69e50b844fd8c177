package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

// llmValidator adapts a model.Client into a SemanticValidator for step 6's
// optional candidate confirmation (spec.md §4.4).
type llmValidator struct {
	client model.Client
}

type validationReply struct {
	IsValid    bool    `json:"is_valid"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func (v *llmValidator) Validate(ctx context.Context, sampleText string) (bool, float64, error) {
	prompt := fmt.Sprintf(`Sample text from a repeated element cluster on a web page:

%s

Is this a product container, a navigation element, a carousel wrapper, an advertisement, or something else? Reply with JSON only: {"is_valid": bool, "category": string, "confidence": number between 0 and 1, "reason": string}. is_valid is true only for a product container.`, sampleText)

	resp, err := v.client.Invoke(ctx, model.Request{
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return false, 0, fmt.Errorf("extract: semantic validation call: %w", err)
	}

	var reply validationReply
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &reply); err != nil {
		return false, 0, fmt.Errorf("extract: parse semantic validation reply: %w", err)
	}
	return reply.IsValid, reply.Confidence, nil
}

// extractJSONObject strips conversational wrapping (code fences,
// leading/trailing prose) some providers add around a JSON reply even when
// JSONMode is requested (spec.md §9 "Free-form LLM responses").
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

var _ SemanticValidator = (*llmValidator)(nil)
