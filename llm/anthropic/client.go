// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// runtime/model.Client contract: one-shot best-effort-JSON completions and
// an optional single-image vision call, grounded on the teacher's
// features/model/anthropic adapter but simplified to this module's
// single-prompt Request shape (no multi-turn conversation state).
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a mock for *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's defaults.
type Options struct {
	// Model is the Claude model identifier used for every call.
	Model string
	// MaxTokens is the default completion cap applied when Request.MaxTokens
	// is zero.
	MaxTokens int
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds an adapter from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{msg: msg, model: opts.Model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: modelID})
}

// Invoke implements model.Client.
func (c *Client) Invoke(ctx context.Context, req model.Request) (model.Response, error) {
	return c.complete(ctx, req, nil)
}

// InvokeWithImage implements model.Client, attaching req.Image as a base64
// image content block alongside the text prompt.
func (c *Client) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	if req.Image == nil {
		return model.Response{}, errors.New("anthropic: InvokeWithImage requires a non-nil Image")
	}
	return c.complete(ctx, req, req.Image)
}

func (c *Client) complete(ctx context.Context, req model.Request, img *model.Image) (model.Response, error) {
	if req.Prompt == "" {
		return model.Response{}, errors.New("anthropic: prompt is required")
	}
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.Prompt)}
	if img != nil {
		mediaType := "image/" + img.Format
		blocks = append([]sdk.ContentBlockParamUnion{sdk.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(img.Bytes))}, blocks...)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translate(msg), nil
}

func translate(msg *sdk.Message) model.Response {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return model.Response{
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func isRateLimited(err error) bool {
	return err != nil && errors.Is(err, model.ErrRateLimited)
}

