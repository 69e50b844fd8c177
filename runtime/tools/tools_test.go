package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaFor(required ...string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": required,
		"properties": map[string]any{
			"selector": map[string]any{"type": "string"},
			"count":    map[string]any{"type": "number"},
		},
	}
}

func TestCompileSchemaAndValidateRequired(t *testing.T) {
	schema, err := CompileSchema("dom.click", schemaFor("selector"))
	require.NoError(t, err)

	spec := &Spec{Name: "dom.click", InputSchema: schema}

	issues, err := spec.Validate(map[string]any{"selector": "#go"})
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = spec.Validate(map[string]any{})
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, "missing_field", issues[0].Constraint)
}

func TestValidateRejectsWrongType(t *testing.T) {
	schema, err := CompileSchema("extract.products", schemaFor())
	require.NoError(t, err)
	spec := &Spec{Name: "extract.products", InputSchema: schema}

	issues, err := spec.Validate(map[string]any{"count": "not a number"})
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, "type", issues[0].Constraint)
}

func TestValidateWithNilSchemaAlwaysPasses(t *testing.T) {
	spec := &Spec{Name: "noop"}
	issues, err := spec.Validate(map[string]any{"anything": true})
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestIdentString(t *testing.T) {
	assert.Equal(t, "form.fill", Ident("form.fill").String())
}

func TestSpecExecuteIsCallable(t *testing.T) {
	spec := &Spec{
		Name: "dom.noop",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return args["selector"], nil
		},
	}
	result, err := spec.Execute(context.Background(), map[string]any{"selector": "#x"})
	require.NoError(t, err)
	assert.Equal(t, "#x", result)
}
