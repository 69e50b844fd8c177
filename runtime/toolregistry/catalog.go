package toolregistry

import "github.com/webpilot-ai/webpilot/runtime/tools"

// Catalog adapts a Registry to planner.ToolCatalog, the minimal read-only
// view the planner needs without granting it execution access.
type Catalog struct {
	registry *Registry
}

// NewCatalog returns a Catalog backed by r.
func NewCatalog(r *Registry) *Catalog { return &Catalog{registry: r} }

// Names returns every registered tool name, sorted.
func (c *Catalog) Names() []string {
	idents := c.registry.Names()
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = string(id)
	}
	return out
}

// Describe returns name's registered description, or an empty string if
// name is not registered.
func (c *Catalog) Describe(name string) string {
	spec, ok := c.registry.Spec(tools.Ident(name))
	if !ok {
		return ""
	}
	return spec.Description
}
