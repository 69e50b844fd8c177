package formfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

// decide implements step 2: a small, form-size-independent prompt asking
// the LLM to choose (or skip) this field's value.
func (f *Filler) decide(ctx context.Context, instruction string, fd pagecontext.FieldDescriptor, filled map[string]string, lastErr error) (fieldDecision, error) {
	if f.Model == nil {
		return fieldDecision{}, fmt.Errorf("formfill: no model client configured")
	}

	prompt := buildFieldPrompt(instruction, fd, filled, lastErr)
	resp, err := f.Model.Invoke(ctx, model.Request{
		Prompt:      prompt,
		MaxTokens:   250,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return fieldDecision{}, fmt.Errorf("formfill: decide value for %q: %w", fieldLabel(fd), err)
	}

	var decision fieldDecision
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &decision); err != nil {
		return fieldDecision{}, fmt.Errorf("formfill: parse decision for %q: %w", fieldLabel(fd), err)
	}
	return decision, nil
}

func buildFieldPrompt(instruction string, fd pagecontext.FieldDescriptor, filled map[string]string, lastErr error) string {
	var b strings.Builder
	b.WriteString("Instruction: ")
	b.WriteString(instruction)
	b.WriteString("\n\nFields already filled:\n")
	if len(filled) == 0 {
		b.WriteString("(none)\n")
	} else {
		names := make([]string, 0, len(filled))
		for n := range filled {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(&b, "- %s: %s\n", n, filled[n])
		}
	}
	fmt.Fprintf(&b, "\nCurrent field: name=%q type=%q label=%q placeholder=%q required=%v\n",
		fd.Name, fd.Type, fd.Label, fd.Placeholder, fd.Required)
	if len(fd.Options) > 0 {
		fmt.Fprintf(&b, "Allowed options: %s\n", strings.Join(fd.Options, ", "))
	}
	if lastErr != nil {
		fmt.Fprintf(&b, "\nThe previous attempt failed validation: %v\n", lastErr)
	}
	b.WriteString(`
Reply with JSON only: {"value": string, "skip": bool, "reason": string, "confidence": number between 0 and 1}. Set skip=true only when this field cannot be meaningfully filled from the instruction and has no safe default.`)
	return b.String()
}

// extractJSONObject strips conversational wrapping some providers add
// around a JSON reply even when JSONMode is requested.
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

func decodeEval(raw any, out any) error {
	switch v := raw.(type) {
	case string:
		return json.Unmarshal([]byte(v), out)
	case []byte:
		return json.Unmarshal(v, out)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
}
