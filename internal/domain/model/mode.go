package model

import "strings"

// Mode selects the expert persona a session talks to.
type Mode string

const (
	ModeProduct Mode = "product"
	ModeFinance Mode = "finance"
	ModeStock   Mode = "stock"

	DefaultMode = ModeProduct
)

// Modes lists every mode in menu order.
func Modes() []Mode {
	return []Mode{ModeProduct, ModeFinance, ModeStock}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeProduct, ModeFinance, ModeStock:
		return true
	}
	return false
}

// ParseMode normalizes raw input. ok is false for unknown values, in which case
// DefaultMode is returned.
func ParseMode(raw string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return DefaultMode, false
	}
	return m, true
}
