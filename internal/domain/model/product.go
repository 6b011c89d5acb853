package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is one catalog entry the product persona can talk about.
type Product struct {
	SKU         string          `yaml:"sku" json:"sku"`
	Name        string          `yaml:"name" json:"name"`
	Category    string          `yaml:"category" json:"category"`
	Description string          `yaml:"description" json:"description"`
	Price       decimal.Decimal `yaml:"price" json:"price"`
	Currency    string          `yaml:"currency" json:"currency"`
	Tags        []string        `yaml:"tags" json:"tags,omitempty"`
}

// PriceLabel renders the price with two decimals and the currency symbol.
func (p Product) PriceLabel() string {
	amount := p.Price.StringFixed(2)
	switch strings.ToUpper(strings.TrimSpace(p.Currency)) {
	case "", "CNY", "RMB":
		return "¥" + amount
	case "USD":
		return "$" + amount
	case "EUR":
		return "€" + amount
	default:
		return amount + " " + strings.ToUpper(p.Currency)
	}
}
