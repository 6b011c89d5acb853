package persona

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"expert-assistant/internal/domain/model"
)

//go:embed data
var DataFS embed.FS

const defaultProductsPath = "data/products.yaml"

// StaticProducts is a fixed, in-memory catalog.
type StaticProducts []model.Product

func (s StaticProducts) Products() []model.Product {
	out := make([]model.Product, len(s))
	copy(out, s)
	return out
}

type productsFile struct {
	Products []model.Product `yaml:"products"`
}

// LoadProducts reads a YAML product catalog from fsys. Entries without a name
// are rejected.
func LoadProducts(fsys fs.FS, path string) (StaticProducts, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read product catalog %s: %w", path, err)
	}
	var f productsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse product catalog %s: %w", path, err)
	}
	for i, p := range f.Products {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product catalog %s: entry %d has no name", path, i)
		}
	}
	return StaticProducts(f.Products), nil
}

// DefaultProducts returns the catalog embedded in the binary.
func DefaultProducts() (StaticProducts, error) {
	return LoadProducts(DataFS, defaultProductsPath)
}

type definitionsFile struct {
	Personas map[string]Definition `yaml:"personas"`
}

// LoadDefinitions reads persona overrides keyed by mode name. Unknown mode
// names are an error so a typo doesn't silently fall back.
func LoadDefinitions(fsys fs.FS, path string) (map[model.Mode]Definition, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read persona definitions %s: %w", path, err)
	}
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse persona definitions %s: %w", path, err)
	}
	out := make(map[model.Mode]Definition, len(f.Personas))
	for name, def := range f.Personas {
		mode, ok := model.ParseMode(name)
		if !ok {
			return nil, fmt.Errorf("persona definitions %s: unknown mode %q", path, name)
		}
		out[mode] = def
	}
	return out, nil
}
