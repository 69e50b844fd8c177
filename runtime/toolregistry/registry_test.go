package toolregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/tools"
)

func clickSpec(t *testing.T) *tools.Spec {
	t.Helper()
	schema, err := tools.CompileSchema("dom.click", map[string]any{
		"type":     "object",
		"required": []string{"selector"},
		"properties": map[string]any{
			"selector": map[string]any{"type": "string"},
		},
	})
	require.NoError(t, err)
	return &tools.Spec{
		Name:        "dom.click",
		InputSchema: schema,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"clicked": args["selector"]}, nil
		},
	}
}

func TestRegisterAndCall(t *testing.T) {
	r := New()
	r.Register(clickSpec(t))

	inv := r.Call(context.Background(), "dom.click", map[string]any{"selector": "#go"})
	require.Nil(t, inv.Error)
	assert.Equal(t, map[string]any{"clicked": "#go"}, inv.Result)
}

func TestCallUnknownTool(t *testing.T) {
	r := New()
	inv := r.Call(context.Background(), "no.such.tool", nil)
	require.NotNil(t, inv.Error)
	assert.Equal(t, "unknown_tool", inv.Error.Kind)
}

func TestCallMissingRequiredArgProducesRetryHint(t *testing.T) {
	r := New()
	r.Register(clickSpec(t))

	inv := r.Call(context.Background(), "dom.click", map[string]any{})
	require.NotNil(t, inv.Error)
	assert.Equal(t, "invalid_arguments", inv.Error.Kind)
	require.NotNil(t, inv.RetryHint)
	assert.Equal(t, RetryReasonMissingFields, inv.RetryHint.Reason)
}

func TestCallRecoversFromPanic(t *testing.T) {
	r := New()
	r.Register(&tools.Spec{
		Name: "dom.boom",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			panic("kaboom")
		},
	})

	inv := r.Call(context.Background(), "dom.boom", nil)
	require.NotNil(t, inv.Error)
	assert.Equal(t, "panic", inv.Error.Kind)
}

func TestCallWrapsExecuteError(t *testing.T) {
	r := New()
	r.Register(&tools.Spec{
		Name: "dom.fail",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("navigation timed out")
		},
	})

	inv := r.Call(context.Background(), "dom.fail", nil)
	require.NotNil(t, inv.Error)
	assert.Contains(t, inv.Error.Message, "navigation timed out")
}

func TestRegisterPanicsOnDuplicateName(t *testing.T) {
	r := New()
	r.Register(clickSpec(t))
	assert.Panics(t, func() { r.Register(clickSpec(t)) })
}

func TestRegisterPanicsAfterClose(t *testing.T) {
	r := New()
	r.Close()
	assert.Panics(t, func() { r.Register(clickSpec(t)) })
}

func TestNamesIsSorted(t *testing.T) {
	r := New()
	r.Register(&tools.Spec{Name: "form.fill"})
	r.Register(&tools.Spec{Name: "dom.click"})
	r.Register(&tools.Spec{Name: "extract.links"})

	assert.Equal(t, []tools.Ident{"dom.click", "extract.links", "form.fill"}, r.Names())
}
