// Package renderer turns orders into printable receipt text
package renderer

import (
	"time"
)

// Columns is the line width of an 80mm receipt in the printer's default font.
const Columns = 40

// Placeholder replaces optional order fields that are missing.
const Placeholder = "Não informado"

// Renderer produces the fixed receipt layout
type Renderer struct {
	restaurantName string
	now            func() time.Time
}

// New creates a renderer that prints restaurantName in the header
func New(restaurantName string) *Renderer {
	if restaurantName == "" {
		restaurantName = "RESTAURANTE"
	}
	return &Renderer{
		restaurantName: restaurantName,
		now:            time.Now,
	}
}
