// Package term implements a terminal state machine: an escape-sequence
// parser feeding a fixed-size grid of styled character cells.
package term

// ColorKind says how a Color is to be interpreted.
type ColorKind uint8

const (
	// ColorDefault is the terminal's default foreground or background.
	ColorDefault ColorKind = iota
	// ColorIndexed is a palette entry (0-255).
	ColorIndexed
	// ColorRGB is a 24-bit color.
	ColorRGB
)

// Color is a foreground or background color.
type Color struct {
	Kind    ColorKind
	Index   uint8
	R, G, B uint8
}

// DefaultColor is the zero Color.
var DefaultColor = Color{}

// IndexedColor returns palette color i.
func IndexedColor(i uint8) Color {
	return Color{Kind: ColorIndexed, Index: i}
}

// RGBColor returns a 24-bit color.
func RGBColor(r, g, b uint8) Color {
	return Color{Kind: ColorRGB, R: r, G: g, B: b}
}

// IsDefault reports whether c is the default color.
func (c Color) IsDefault() bool {
	return c.Kind == ColorDefault
}

// Cell is one character position on the grid.
type Cell struct {
	Rune rune
	FG   Color
	BG   Color
}

// BlankCell is a space with default colors.
var BlankCell = Cell{Rune: ' '}

// Cursor is a zero-based grid position.
type Cursor struct {
	Col int
	Row int
}
