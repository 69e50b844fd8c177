package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

func TestOrderByPriorityPutsRequiredFirstStably(t *testing.T) {
	fields := []pagecontext.FieldDescriptor{
		{Name: "newsletter"},
		{Name: "email", Required: true},
		{Name: "name", Required: true},
		{Name: "comment"},
	}
	ordered := orderByPriority(fields)
	assert.Equal(t, []string{"email", "name", "newsletter", "comment"}, names(ordered))
}

func names(fields []pagecontext.FieldDescriptor) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = fieldLabel(f)
	}
	return out
}

func TestSkipKind(t *testing.T) {
	assert.True(t, skipKind(pagecontext.FieldDescriptor{Type: "hidden"}))
	assert.True(t, skipKind(pagecontext.FieldDescriptor{Type: "FILE"}))
	assert.False(t, skipKind(pagecontext.FieldDescriptor{Type: "text"}))
}

func TestMentionsField(t *testing.T) {
	fd := pagecontext.FieldDescriptor{Name: "dob", Label: "Date of birth"}
	assert.True(t, mentionsField("please set date of birth to 1990", fd))
	assert.False(t, mentionsField("fill in the email", fd))
}

func TestFieldLabelPrefersNameThenLabelThenIDThenType(t *testing.T) {
	assert.Equal(t, "email", fieldLabel(pagecontext.FieldDescriptor{Name: "email", Label: "E-mail"}))
	assert.Equal(t, "E-mail", fieldLabel(pagecontext.FieldDescriptor{Label: "E-mail", ID: "field-1"}))
	assert.Equal(t, "field-1", fieldLabel(pagecontext.FieldDescriptor{ID: "field-1"}))
	assert.Equal(t, "text", fieldLabel(pagecontext.FieldDescriptor{Type: "text"}))
}

func TestSiteHostStripsWWW(t *testing.T) {
	assert.Equal(t, "example.com", siteHost("https://www.example.com/contact"))
	assert.Equal(t, "example.com", siteHost("https://example.com/contact"))
	assert.Equal(t, "", siteHost("://bad-url"))
}

func TestCanonicalDefaultByType(t *testing.T) {
	assert.Equal(t, "user@example.com", canonicalDefault(pagecontext.FieldDescriptor{Type: "email"}))
	assert.Equal(t, "0000000000", canonicalDefault(pagecontext.FieldDescriptor{Type: "tel"}))
	assert.Equal(t, "1", canonicalDefault(pagecontext.FieldDescriptor{Type: "number"}))
	assert.Equal(t, "N/A", canonicalDefault(pagecontext.FieldDescriptor{Type: "text"}))
}

func TestRemediateFirstAttemptReturnsValueUnchanged(t *testing.T) {
	fd := pagecontext.FieldDescriptor{Type: "email"}
	got := remediate("", fd, 0, nil, fakeNoopPage{})
	assert.Equal(t, "", got)
}

func TestRemediateRetryFillsDomainMatchedEmail(t *testing.T) {
	fd := pagecontext.FieldDescriptor{Type: "email"}
	page := urlPage{url: "https://www.acme.com/signup"}
	got := remediate("", fd, 1, assertBoom, page)
	assert.Equal(t, "contact@acme.com", got)
}

func TestRemediateRetryFillsCanonicalDefaultForRequiredEmpty(t *testing.T) {
	fd := pagecontext.FieldDescriptor{Type: "number", Required: true}
	got := remediate("", fd, 1, assertBoom, fakeNoopPage{})
	assert.Equal(t, "1", got)
}

type urlPage struct {
	fakeNoopPage
	url string
}

func (p urlPage) URL() string { return p.url }

type boomErr string

func (e boomErr) Error() string { return string(e) }

var assertBoom = boomErr("validation failed: required")
