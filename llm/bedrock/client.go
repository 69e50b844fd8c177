// Package bedrock adapts the AWS Bedrock Converse API to the
// runtime/model.Client contract, grounded on the teacher's
// features/model/bedrock adapter but simplified to this module's
// single-prompt Request shape.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client the
// adapter needs; *bedrockruntime.Client satisfies it.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	// Model is the Bedrock model identifier used for every call.
	Model string
	// MaxTokens is the default completion cap applied when Request.MaxTokens
	// is zero.
	MaxTokens int
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime   RuntimeClient
	model     string
	maxTokens int
}

// New builds an adapter from a Bedrock runtime client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{runtime: runtime, model: opts.Model, maxTokens: maxTokens}, nil
}

// Invoke implements model.Client.
func (c *Client) Invoke(ctx context.Context, req model.Request) (model.Response, error) {
	return c.converse(ctx, req, nil)
}

// InvokeWithImage implements model.Client, attaching req.Image as an
// inline image content block.
func (c *Client) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	if req.Image == nil {
		return model.Response{}, errors.New("bedrock: InvokeWithImage requires a non-nil Image")
	}
	return c.converse(ctx, req, req.Image)
}

func (c *Client) converse(ctx context.Context, req model.Request, img *model.Image) (model.Response, error) {
	if req.Prompt == "" {
		return model.Response{}, errors.New("bedrock: prompt is required")
	}
	blocks := []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.Prompt}}
	if img != nil {
		blocks = append([]brtypes.ContentBlock{&brtypes.ContentBlockMemberImage{
			Value: brtypes.ImageBlock{
				Format: brtypes.ImageFormat(img.Format),
				Source: &brtypes.ImageSourceMemberBytes{Value: img.Bytes},
			},
		}}, blocks...)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{
			{Role: brtypes.ConversationRoleUser, Content: blocks},
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	cfg := brtypes.InferenceConfiguration{}
	hasCfg := false
	if maxTokens := req.MaxTokens; maxTokens > 0 {
		v := int32(maxTokens)
		cfg.MaxTokens = &v
		hasCfg = true
	} else {
		v := int32(c.maxTokens)
		cfg.MaxTokens = &v
		hasCfg = true
	}
	if req.Temperature > 0 {
		v := float32(req.Temperature)
		cfg.Temperature = &v
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = &cfg
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translate(output), nil
}

func translate(output *bedrockruntime.ConverseOutput) model.Response {
	var resp model.Response
	if output == nil {
		return resp
	}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
				resp.Text += v.Value
			}
		}
	}
	resp.StopReason = string(output.StopReason)
	if u := output.Usage; u != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(u.InputTokens)),
			OutputTokens: int(aws.ToInt32(u.OutputTokens)),
		}
	}
	return resp
}

// isRateLimited reports whether err represents Bedrock throttling (HTTP 429
// or a ThrottlingException/TooManyRequestsException error code).
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}
