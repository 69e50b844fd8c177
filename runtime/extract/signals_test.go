package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPriceSelf(t *testing.T) {
	assert.True(t, rawNode{OwnText: "$19.99"}.hasPriceSelf())
	assert.True(t, rawNode{OwnText: "29,99 EUR"}.hasPriceSelf())
	assert.False(t, rawNode{OwnText: "In stock"}.hasPriceSelf())
}

func TestHasProductHref(t *testing.T) {
	assert.True(t, rawNode{IsAnchor: true, Href: "/products/acme-widget-12345"}.hasProductHref())
	assert.True(t, rawNode{IsAnchor: true, Href: "/p/abc-123"}.hasProductHref())
	assert.False(t, rawNode{IsAnchor: false, Href: "/p/abc-123"}.hasProductHref())
	assert.False(t, rawNode{IsAnchor: true, Href: "/about"}.hasProductHref())
}

func TestDecodeEvalAcceptsStringBytesOrValue(t *testing.T) {
	var a []rawNode
	require.NoError(t, decodeEval(`[{"idx":1}]`, &a))
	assert.Equal(t, 1, a[0].Idx)

	var b []rawNode
	require.NoError(t, decodeEval([]byte(`[{"idx":2}]`), &b))
	assert.Equal(t, 2, b[0].Idx)

	var c []rawNode
	require.NoError(t, decodeEval([]any{map[string]any{"idx": 3.0}}, &c))
	assert.Equal(t, 3, c[0].Idx)
}
