package mappa

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed item_categories.yaml
var defaultCatalogYAML []byte

// ItemRange is an inclusive range of item ids.
type ItemRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Category is one item category with its member items.
type Category struct {
	ID    int         `yaml:"id"`
	Name  string      `yaml:"name"`
	Items []ItemRange `yaml:"items"`
}

// Catalog maps items to categories.
type Catalog struct {
	byID   map[int]*Category
	byName map[string]*Category
}

type catalogFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadCatalog parses a YAML category list.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse item categories: %w", err)
	}

	c := &Catalog{
		byID:   make(map[int]*Category, len(file.Categories)),
		byName: make(map[string]*Category, len(file.Categories)),
	}
	for i := range file.Categories {
		cat := &file.Categories[i]
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate item category id %d", cat.ID)
		}
		for _, r := range cat.Items {
			if r.From > r.To {
				return nil, fmt.Errorf("item category %s: empty range %d-%d", cat.Name, r.From, r.To)
			}
		}
		c.byID[cat.ID] = cat
		c.byName[cat.Name] = cat
	}
	return c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(defaultCatalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup returns the category with the given id.
func (c *Catalog) Lookup(id int) (*Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// ByName returns the category with the given name.
func (c *Catalog) ByName(name string) (*Category, bool) {
	cat, ok := c.byName[name]
	return cat, ok
}

// Contains reports whether item belongs to category.
func (c *Catalog) Contains(category, item int) bool {
	cat, ok := c.byID[category]
	if !ok {
		return false
	}
	for _, r := range cat.Items {
		if item >= r.From && item <= r.To {
			return true
		}
	}
	return false
}
