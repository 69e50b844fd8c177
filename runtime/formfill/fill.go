package formfill

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/browser"
	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

// Filler fills a form field by field, asking client for each value
// (spec.md §4.5).
type Filler struct {
	Model   model.Client
	Options Options
}

// New returns a Filler backed by client with default Options.
func New(client model.Client) *Filler {
	return &Filler{Model: client, Options: Options{}.resolve()}
}

// Fill implements the entry contract
// fill_form(page, instruction, form_fields, llm).
func (f *Filler) Fill(ctx context.Context, page browser.Page, instruction string, fields []pagecontext.FieldDescriptor) (Result, error) {
	opts := f.Options.resolve()
	ordered := orderByPriority(fields)

	filledValues := map[string]string{}
	var results []FieldResult
	var errs []string

	for i, fd := range ordered {
		if skipKind(fd) && !mentionsField(instruction, fd) {
			results = append(results, FieldResult{Name: fieldLabel(fd), Status: StatusSkipped, LastError: "hidden/file field not addressed by instruction"})
			continue
		}

		res := f.fillOne(ctx, page, instruction, fd, i, filledValues, opts)
		if res.Status == StatusFilled {
			filledValues[fieldLabel(fd)] = res.Value
		}
		if res.LastError != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", fieldLabel(fd), res.LastError))
		}
		results = append(results, res)
	}

	if err := f.tickConsent(ctx, page); err != nil {
		errs = append(errs, fmt.Sprintf("consent checkbox: %v", err))
	}

	filledCount := 0
	for _, r := range results {
		if r.Status == StatusFilled {
			filledCount++
		}
	}

	submitted, submitErrs := f.submit(ctx, page, opts)
	errs = append(errs, submitErrs...)

	return Result{FieldsFilled: results, FilledCount: filledCount, Submitted: submitted, Errors: errs}, nil
}

// orderByPriority implements step 1: required fields first, preserving
// relative order within each group.
func orderByPriority(fields []pagecontext.FieldDescriptor) []pagecontext.FieldDescriptor {
	out := make([]pagecontext.FieldDescriptor, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Required && !out[j].Required
	})
	return out
}

func skipKind(fd pagecontext.FieldDescriptor) bool {
	t := strings.ToLower(fd.Type)
	return t == "hidden" || t == "file"
}

func mentionsField(instruction string, fd pagecontext.FieldDescriptor) bool {
	lower := strings.ToLower(instruction)
	for _, candidate := range []string{fd.Name, fd.Label, fd.ID} {
		if candidate == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(candidate)) {
			return true
		}
	}
	return false
}

func fieldLabel(fd pagecontext.FieldDescriptor) string {
	switch {
	case fd.Name != "":
		return fd.Name
	case fd.Label != "":
		return fd.Label
	case fd.ID != "":
		return fd.ID
	default:
		return fd.Type
	}
}

func (f *Filler) fillOne(ctx context.Context, page browser.Page, instruction string, fd pagecontext.FieldDescriptor, idx int, filled map[string]string, opts Options) FieldResult {
	res := FieldResult{Name: fieldLabel(fd)}
	selector := fieldSelector(fd, idx)

	var lastErr error
	for attempt := 0; attempt <= opts.MaxSameError; attempt++ {
		decision, err := f.decide(ctx, instruction, fd, filled, lastErr)
		if err != nil {
			res.Attempts = attempt + 1
			if attempt == opts.MaxSameError {
				res.Status = StatusSkipped
				res.LastError = err.Error()
				return res
			}
			lastErr = err
			continue
		}
		if decision.Skip {
			res.Status = StatusSkipped
			res.LastError = decision.Reason
			res.Attempts = attempt + 1
			return res
		}

		value := remediate(decision.Value, fd, attempt, lastErr, page)
		if err := attemptFill(ctx, page, selector, value); err != nil {
			lastErr = err
			res.Attempts = attempt + 1
			res.LastError = err.Error()
			continue
		}

		if err := page.WaitForTimeout(ctx, 150); err != nil {
			lastErr = err
		}

		invalid, reason := checkInvalid(ctx, page, selector)
		if !invalid {
			res.Status = StatusFilled
			res.Value = value
			res.Attempts = attempt + 1
			return res
		}
		lastErr = fmt.Errorf("validation failed: %s", reason)
		res.Attempts = attempt + 1
		res.LastError = lastErr.Error()
	}

	res.Status = StatusFailed
	return res
}

// remediate applies spec.md §4.5 step 4's field-specific remediation
// before a retry: an email on the site's own domain (keeping the value's
// local part, or "contact" when it has none), or a non-empty canonical
// default for a still-empty required value.
func remediate(value string, fd pagecontext.FieldDescriptor, attempt int, lastErr error, page browser.Page) string {
	if attempt == 0 || lastErr == nil {
		return value
	}
	if strings.EqualFold(fd.Type, "email") {
		if host := siteHost(page.URL()); host != "" {
			local := "contact"
			if at := strings.Index(value, "@"); at > 0 {
				local = value[:at]
			}
			return local + "@" + host
		}
	}
	if fd.Required && value == "" {
		return canonicalDefault(fd)
	}
	return value
}

func siteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func canonicalDefault(fd pagecontext.FieldDescriptor) string {
	switch strings.ToLower(fd.Type) {
	case "email":
		return "user@example.com"
	case "tel":
		return "0000000000"
	case "number":
		return "1"
	default:
		return "N/A"
	}
}
