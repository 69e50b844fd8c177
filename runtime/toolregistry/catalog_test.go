package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webpilot-ai/webpilot/runtime/tools"
)

func TestCatalogNamesAndDescribe(t *testing.T) {
	r := New()
	r.Register(&tools.Spec{Name: "dom.click", Description: "clicks an element"})
	c := NewCatalog(r)

	assert.Equal(t, []string{"dom.click"}, c.Names())
	assert.Equal(t, "clicks an element", c.Describe("dom.click"))
	assert.Equal(t, "", c.Describe("missing.tool"))
}
