// Package persona maps a mode to the expert identity a session talks to.
package persona

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/rs/zerolog"

	"expert-assistant/internal/domain/model"
)

// Persona is the resolved identity for one mode.
type Persona struct {
	Mode         model.Mode `json:"mode"`
	DisplayName  string     `json:"display_name"`
	SystemPrompt string     `json:"-"`
	ThemeColor   string     `json:"theme_color"`
}

// ProductSource supplies the catalog the product persona is templated from.
type ProductSource interface {
	Products() []model.Product
}

// Catalog resolves personas. It is read-only after construction and safe for
// concurrent use.
type Catalog struct {
	defs        map[model.Mode]Definition
	products    ProductSource
	productTmpl *template.Template
	log         *zerolog.Logger
}

type Option func(*Catalog)

// WithDefinitions overrides built-in definitions per mode. Empty fields keep
// the built-in value; unknown modes are ignored.
func WithDefinitions(overrides map[model.Mode]Definition) Option {
	return func(c *Catalog) {
		for mode, o := range overrides {
			base, ok := c.defs[mode]
			if !ok {
				continue
			}
			if o.DisplayName != "" {
				base.DisplayName = o.DisplayName
			}
			if o.SystemPrompt != "" {
				base.SystemPrompt = o.SystemPrompt
			}
			if o.ThemeColor != "" {
				base.ThemeColor = o.ThemeColor
			}
			c.defs[mode] = base
		}
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// NewCatalog parses the product prompt template up front so a bad override is
// reported at startup rather than on every resolve.
func NewCatalog(products ProductSource, opts ...Option) (*Catalog, error) {
	nop := zerolog.Nop()
	c := &Catalog{
		defs:     BuiltinDefinitions(),
		products: products,
		log:      &nop,
	}
	for _, o := range opts {
		o(c)
	}
	if c.products == nil {
		c.products = StaticProducts(nil)
	}

	tmpl, err := template.New("product").
		Funcs(sprig.TxtFuncMap()).
		Parse(c.defs[model.ModeProduct].SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse product prompt: %w", err)
	}
	c.productTmpl = tmpl
	return c, nil
}

// Resolve returns the persona for mode. Unknown modes resolve to the default
// (product) persona.
func (c *Catalog) Resolve(mode model.Mode) Persona {
	switch mode {
	case model.ModeFinance, model.ModeStock:
		d := c.defs[mode]
		return Persona{Mode: mode, DisplayName: d.DisplayName, SystemPrompt: d.SystemPrompt, ThemeColor: d.ThemeColor}
	default:
		return c.productPersona()
	}
}

// ResolveString resolves a raw, possibly untrusted mode string.
func (c *Catalog) ResolveString(raw string) Persona {
	m, _ := model.ParseMode(raw)
	return c.Resolve(m)
}

// Personas lists every persona in menu order.
func (c *Catalog) Personas() []Persona {
	out := make([]Persona, 0, len(model.Modes()))
	for _, m := range model.Modes() {
		out = append(out, c.Resolve(m))
	}
	return out
}

func (c *Catalog) productPersona() Persona {
	d := c.defs[model.ModeProduct]
	return Persona{
		Mode:         model.ModeProduct,
		DisplayName:  d.DisplayName,
		SystemPrompt: c.renderProductPrompt(),
		ThemeColor:   d.ThemeColor,
	}
}

func (c *Catalog) renderProductPrompt() string {
	var buf bytes.Buffer
	data := struct{ Products []model.Product }{Products: c.products.Products()}
	if err := c.productTmpl.Execute(&buf, data); err != nil {
		c.log.Error().Err(err).Msg("render product prompt")
		return fallbackProductPrompt
	}
	return buf.String()
}
