// Package openai adapts github.com/openai/openai-go to the runtime/model.Client
// contract. The teacher's go.mod depends on this same SDK version but its
// actual adapter code (features/model/openai) is written against a different,
// unrelated client library; this package is therefore grounded on the
// anthropic and bedrock adapters' shape in this module rather than on a
// directly analogous teacher file (see DESIGN.md).
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

// ChatClient captures the subset of the OpenAI SDK used here, so tests can
// substitute a mock for client.Chat.Completions.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the adapter's defaults.
type Options struct {
	// Model is the OpenAI model identifier used for every call.
	Model string
	// MaxTokens is the default completion cap applied when Request.MaxTokens
	// is zero.
	MaxTokens int
}

// Client implements model.Client on top of the OpenAI Chat Completions API.
type Client struct {
	chat      ChatClient
	model     string
	maxTokens int
}

// New builds an adapter from an OpenAI chat completions client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{chat: chat, model: opts.Model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{Model: modelID})
}

// Invoke implements model.Client.
func (c *Client) Invoke(ctx context.Context, req model.Request) (model.Response, error) {
	return c.complete(ctx, req, nil)
}

// InvokeWithImage implements model.Client, attaching req.Image as a base64
// data-URL image_url content part alongside the text prompt.
func (c *Client) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	if req.Image == nil {
		return model.Response{}, errors.New("openai: InvokeWithImage requires a non-nil Image")
	}
	return c.complete(ctx, req, req.Image)
}

func (c *Client) complete(ctx context.Context, req model.Request, img *model.Image) (model.Response, error) {
	if req.Prompt == "" {
		return model.Response{}, errors.New("openai: prompt is required")
	}

	var userParts []sdk.ChatCompletionContentPartUnionParam
	userParts = append(userParts, sdk.TextContentPart(req.Prompt))
	if img != nil {
		dataURL := fmt.Sprintf("data:image/%s;base64,%s", img.Format, base64.StdEncoding.EncodeToString(img.Bytes))
		userParts = append(userParts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	messages = append(messages, sdk.UserMessage(userParts))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: sdk.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.JSONMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("openai: chat.completions.new: %w", err)
	}
	return translate(resp), nil
}

func translate(resp *sdk.ChatCompletion) model.Response {
	var out model.Response
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	out.StopReason = string(choice.FinishReason)
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return out
}

// isRateLimited reports whether err represents an OpenAI 429 response. The
// SDK surfaces non-2xx responses as *sdk.Error with a StatusCode field.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	return false
}
