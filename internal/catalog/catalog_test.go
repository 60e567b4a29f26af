package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/handoff-router/internal/domain"
)

func TestLookupByNumberAndName(t *testing.T) {
	c := Default()

	p, ok := c.Lookup("2")
	require.True(t, ok)
	assert.Equal(t, 100, p.Price)

	p, ok = c.Lookup(" ALIENGO KINGSIZE BLACK ")
	require.True(t, ok)
	assert.Equal(t, 1, p.ID)

	_, ok = c.Lookup("9")
	assert.False(t, ok)
	_, ok = c.Lookup("aliengo")
	assert.False(t, ok, "partial names do not match")
	_, ok = c.Lookup("")
	assert.False(t, ok)
}

func TestMenuListsEveryProduct(t *testing.T) {
	menu := Default().Menu()
	assert.Contains(t, menu, "1. Aliengo Kingsize Black: Ksh 150")
	assert.Contains(t, menu, "4. Box With 50 Booklets: Ksh 2300")
	assert.True(t, strings.HasSuffix(menu, "Type 'help' to talk to a person."))
}

func TestNewRejectsInvalidProducts(t *testing.T) {
	tests := []struct {
		name     string
		products []domain.Product
	}{
		{"empty", nil},
		{"zero id", []domain.Product{{ID: 0, Name: "a", Price: 1}}},
		{"missing name", []domain.Product{{ID: 1, Name: " ", Price: 1}}},
		{"negative price", []domain.Product{{ID: 1, Name: "a", Price: -1}}},
		{"price too large", []domain.Product{{ID: 1, Name: "a", Price: domain.MaxPrice + 1}}},
		{"duplicate id", []domain.Product{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}},
		{"duplicate name", []domain.Product{{ID: 1, Name: "a"}, {ID: 2, Name: "A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.products)
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
products:
  - id: 2
    name: papers
    price: 50
  - id: 1
    name: tips
    price: 20
`), 0o600))

	c, err := Load(yamlPath)
	require.NoError(t, err)
	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "tips", products[0].Name, "products are ordered by id")

	tomlPath := filepath.Join(dir, "catalog.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[[products]]
id = 7
name = "grinder"
price = 900
`), 0o600))

	c, err = Load(tomlPath)
	require.NoError(t, err)
	p, ok := c.Lookup("7")
	require.True(t, ok)
	assert.Equal(t, 900, p.Price)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
