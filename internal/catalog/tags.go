// Package catalog holds the immutable planning tag options and the curriculum
// item model that annotations attach to.
package catalog

import "strings"

// TagOption is an immutable catalog entry. Plan layers store copies of it,
// never references.
type TagOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Catalog is an ordered, read-only set of tag options.
type Catalog struct {
	options []TagOption
	index   map[string]int
}

// NewCatalog builds a catalog. Blank and duplicate ids are skipped; the first
// occurrence wins.
func NewCatalog(options ...TagOption) *Catalog {
	c := &Catalog{index: make(map[string]int, len(options))}
	for _, option := range options {
		option.ID = strings.TrimSpace(option.ID)
		if option.ID == "" {
			continue
		}
		if _, exists := c.index[option.ID]; exists {
			continue
		}
		c.index[option.ID] = len(c.options)
		c.options = append(c.options, option)
	}
	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog(
		TagOption{ID: "core", Label: "Core", Icon: "★"},
		TagOption{ID: "priority", Label: "Priority", Icon: "!"},
		TagOption{ID: "next-term", Label: "Next term", Icon: "→"},
		TagOption{ID: "revisit", Label: "Revisit", Icon: "↺"},
		TagOption{ID: "elective", Label: "Elective", Icon: "◇"},
		TagOption{ID: "done", Label: "Done", Icon: "✓"},
	)
}

func (c *Catalog) Lookup(id string) (TagOption, bool) {
	if c == nil {
		return TagOption{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return TagOption{}, false
	}
	return c.options[i], true
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// Position returns the catalog order of id, or -1.
func (c *Catalog) Position(id string) int {
	if c == nil {
		return -1
	}
	i, ok := c.index[id]
	if !ok {
		return -1
	}
	return i
}

func (c *Catalog) Options() []TagOption {
	if c == nil {
		return nil
	}
	out := make([]TagOption, len(c.options))
	copy(out, c.options)
	return out
}
