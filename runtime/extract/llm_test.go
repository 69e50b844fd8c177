package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

func TestExtractJSONObjectStripsCodeFenceWrapping(t *testing.T) {
	in := "```json\n{\"is_valid\": true}\n```"
	assert.Equal(t, `{"is_valid": true}`, extractJSONObject(in))
}

func TestExtractJSONObjectPassesThroughPlainJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`{"a":1}`))
}

type fakeValidatorClient struct {
	text string
	err  error
}

func (c fakeValidatorClient) Invoke(context.Context, model.Request) (model.Response, error) {
	if c.err != nil {
		return model.Response{}, c.err
	}
	return model.Response{Text: c.text}, nil
}

func (c fakeValidatorClient) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	return c.Invoke(ctx, req)
}

func TestLLMValidatorParsesConfidenceAndValidity(t *testing.T) {
	client := fakeValidatorClient{text: `{"is_valid": true, "category": "product", "confidence": 0.9, "reason": "priced cards"}`}
	v := &llmValidator{client: client}

	valid, confidence, err := v.Validate(context.Background(), "Widget | $19.99")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 0.9, confidence)
}

type validatorErr string

func (e validatorErr) Error() string { return string(e) }

func TestLLMValidatorPropagatesInvokeError(t *testing.T) {
	client := fakeValidatorClient{err: validatorErr("rate limited")}
	v := &llmValidator{client: client}

	_, _, err := v.Validate(context.Background(), "sample")
	assert.Error(t, err)
}
