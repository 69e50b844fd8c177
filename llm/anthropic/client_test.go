package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

type fakeMessagesClient struct {
	resp *sdk.Message
	err  error
	got  sdk.MessageNewParams
}

func (f *fakeMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	return f.resp, f.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestNewRejectsMissingClientOrModel(t *testing.T) {
	_, err := New(nil, Options{Model: "claude"})
	assert.Error(t, err)

	_, err = New(&fakeMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestNewAppliesDefaultMaxTokens(t *testing.T) {
	c, err := New(&fakeMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, 1024, c.maxTokens)
}

func TestInvokeTranslatesTextAndUsage(t *testing.T) {
	msg := &fakeMessagesClient{resp: textMessage("hello there")}
	c, err := New(msg, Options{Model: "claude-x"})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), model.Request{Prompt: "hi", System: "be terse"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	require.Len(t, msg.got.System, 1)
	assert.Equal(t, "be terse", msg.got.System[0].Text)
}

func TestInvokeRejectsEmptyPrompt(t *testing.T) {
	c, err := New(&fakeMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestInvokeWithImageRequiresImage(t *testing.T) {
	c, err := New(&fakeMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	_, err = c.InvokeWithImage(context.Background(), model.Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestInvokeWithImageAttachesImageBlock(t *testing.T) {
	msg := &fakeMessagesClient{resp: textMessage("ok")}
	c, err := New(msg, Options{Model: "claude-x"})
	require.NoError(t, err)

	_, err = c.InvokeWithImage(context.Background(), model.Request{
		Prompt: "describe this",
		Image:  &model.Image{Format: "png", Bytes: []byte("fake-bytes")},
	})
	require.NoError(t, err)
	require.Len(t, msg.got.Messages, 1)
	require.Len(t, msg.got.Messages[0].Content, 2)
}

func TestInvokeWrapsRateLimitError(t *testing.T) {
	msg := &fakeMessagesClient{err: model.ErrRateLimited}
	c, err := New(msg, Options{Model: "claude-x"})
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), model.Request{Prompt: "hi"})
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestInvokeWrapsOtherErrors(t *testing.T) {
	msg := &fakeMessagesClient{err: errors.New("boom")}
	c, err := New(msg, Options{Model: "claude-x"})
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), model.Request{Prompt: "hi"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrRateLimited)
}
