// Package model defines the provider-agnostic request/response types and
// the Client interface consumed by the Hierarchical Planner, the Iterative
// Extractor's optional semantic validation pass, and the Per-Field Form
// Filler. Concrete providers (llm/anthropic, llm/openai, llm/bedrock)
// translate these into their own wire formats.
package model

import (
	"context"
	"errors"
)

type (
	// Request is a single best-effort-JSON completion request. The core
	// never assumes strict provider conformance: every caller treats the
	// returned text as untrusted and runs it through a repair path
	// (spec.md §4.2 "Failure modes", §9 "Free-form LLM responses").
	Request struct {
		// System is the system/instructions text prepended to the
		// conversation, if any.
		System string
		// Prompt is the user-turn text for this call. The core issues one
		// request per planning decision; there is no multi-turn
		// conversation state threaded through Request.
		Prompt string
		// Image optionally attaches a single screenshot for vision-backed
		// calls (spec.md §6 "invoke_with_image(prompt, image_path)").
		Image *Image
		// MaxTokens bounds the completion length. Zero lets the provider
		// adapter apply its own default.
		MaxTokens int
		// Temperature controls sampling randomness. Zero lets the provider
		// adapter apply its own default.
		Temperature float64
		// JSONMode asks the provider to bias toward a JSON-only reply when
		// it supports a native JSON response mode. Callers must still
		// validate the reply; this is a hint, not a guarantee.
		JSONMode bool
	}

	// Image carries inline image bytes for a vision-backed request.
	Image struct {
		// Format is the image encoding, e.g. "png" or "jpeg".
		Format string
		// Bytes contains the raw encoded image.
		Bytes []byte
	}

	// Response is a single completion result.
	Response struct {
		// Text is the provider's reply text.
		Text string
		// Usage reports token accounting when the provider exposes it.
		Usage TokenUsage
		// StopReason records why generation stopped (provider-specific).
		StopReason string
	}

	// TokenUsage reports input/output token counts for a completion.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
	}

	// Client is the provider-agnostic LLM backend. Implementations
	// translate Request into provider calls and adapt the result back into
	// Response.
	Client interface {
		// Invoke performs a text-only completion.
		Invoke(ctx context.Context, req Request) (Response, error)
		// InvokeWithImage performs a multimodal completion. Implementations
		// that do not support vision return ErrVisionUnsupported.
		InvokeWithImage(ctx context.Context, req Request) (Response, error)
	}
)

// ErrVisionUnsupported is returned by Client.InvokeWithImage when the
// underlying provider/model does not support image inputs. Callers must
// treat this as "fall back to the non-vision path", not as a terminal
// failure.
var ErrVisionUnsupported = errors.New("model: vision completion not supported by this client")

// ErrRateLimited is returned (or wrapped) by Client implementations when
// the provider signals a rate-limit rejection. llm/middleware's adaptive
// limiter watches for this via errors.Is to trigger backoff.
var ErrRateLimited = errors.New("model: rate limited by provider")
