// Package catalog provides the static product catalog used by the ordering flow.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/handoff-router/internal/domain"
)

// ErrUnsupportedFormat is returned for catalog files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported catalog format")

// Catalog is a read-only product lookup table keyed by choice number.
type Catalog struct {
	products []domain.Product
	byID     map[int]domain.Product
}

// file is the on-disk catalog layout shared by YAML and TOML.
type file struct {
	Products []domain.Product `yaml:"products" toml:"products"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, _ := New([]domain.Product{
		{ID: 1, Name: "aliengo kingsize black", Price: 150},
		{ID: 2, Name: `korobo 1 1/4" blue`, Price: 100},
		{ID: 3, Name: `wetop 1 1/4" brown`, Price: 100},
		{ID: 4, Name: "box with 50 booklets", Price: 2300},
	})
	return c
}

// New validates products and builds a catalog ordered by ID.
func New(products []domain.Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog has no products")
	}

	c := &Catalog{
		byID: make(map[int]domain.Product, len(products)),
	}
	names := make(map[string]bool, len(products))
	for _, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		if p.ID <= 0 {
			return nil, fmt.Errorf("product %q: id must be positive", p.Name)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("product %d: name is required", p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("product %d: price must not be negative", p.ID)
		}
		if p.Price > domain.MaxPrice {
			return nil, fmt.Errorf("product %d: price must not exceed %d", p.ID, domain.MaxPrice)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id", p.ID)
		}
		key := strings.ToLower(p.Name)
		if names[key] {
			return nil, fmt.Errorf("product %d: duplicate name %q", p.ID, p.Name)
		}
		names[key] = true
		c.byID[p.ID] = p
		c.products = append(c.products, p)
	}
	sort.Slice(c.products, func(i, j int) bool { return c.products[i].ID < c.products[j].ID })
	return c, nil
}

// Load reads a catalog from a .yaml, .yml or .toml file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return nil, fmt.Errorf("parse toml catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	c, err := New(f.Products)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return c, nil
}

// Products returns the catalog entries ordered by ID.
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Lookup resolves a buyer's selection: a choice number, or an exact
// case-insensitive product name.
func (c *Catalog) Lookup(choice string) (domain.Product, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return domain.Product{}, false
	}
	if id, err := strconv.Atoi(choice); err == nil {
		p, ok := c.byID[id]
		return p, ok
	}
	for _, p := range c.products {
		if strings.EqualFold(p.Name, choice) {
			return p, true
		}
	}
	return domain.Product{}, false
}

// DisplayName returns the product name in title case.
// A Caser is stateful, so one is built per call.
func (c *Catalog) DisplayName(name string) string {
	return cases.Title(language.English).String(name)
}

// Menu renders the welcome text with the product listing.
func (c *Catalog) Menu() string {
	var b strings.Builder
	b.WriteString("Hey there! 🌿 Welcome to our rolling paper shop!\n\nHere's what we have:\n")
	for _, p := range c.products {
		fmt.Fprintf(&b, "%d. %s: Ksh %d\n", p.ID, c.DisplayName(p.Name), p.Price)
	}
	b.WriteString("\nReply with the product number to order. Type 'help' to talk to a person.")
	return b.String()
}
