package term

import (
	"strings"
	"sync"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// widthCond measures runes independently of the host locale so the same
// input always lays out the same way.
var widthCond = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}()

// RuneWidth returns the number of columns r occupies: 2 for wide runes,
// otherwise 1. Zero-width runes still take a column.
func RuneWidth(r rune) int {
	if w := widthCond.RuneWidth(r); w > 1 {
		return 2
	}
	return 1
}

// Terminal is a grid of cells plus cursor and current attributes.
// All methods are safe for concurrent use; Feed holds the lock for the
// whole chunk so readers never observe a half-applied chunk.
type Terminal struct {
	mu sync.RWMutex

	cols   int
	rows   int
	cells  []Cell
	cursor Cursor
	fg     Color
	bg     Color

	parser parser
}

// New returns a blank terminal of cols x rows. Dimensions below one are
// raised to one.
func New(cols, rows int) *Terminal {
	t := &Terminal{}
	t.reset(cols, rows)
	return t
}

func (t *Terminal) reset(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	t.cols = cols
	t.rows = rows
	t.cells = make([]Cell, cols*rows)
	for i := range t.cells {
		t.cells[i] = BlankCell
	}
	t.cursor = Cursor{}
}

// Feed runs bytes through the parser. Sequences and UTF-8 runes may be
// split across calls.
func (t *Terminal) Feed(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range p {
		t.parser.advance(t, b)
	}
}

// DrawChar applies r at the cursor as if it had been decoded from input.
func (t *Terminal) DrawChar(r rune) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drawChar(r)
}

// ScrollUp moves every row up by one and blanks the last row.
func (t *Terminal) ScrollUp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scrollUp()
}

// Resize replaces the grid with a blank one and homes the cursor.
// Content is not reflowed. Current colors and parser state are kept.
func (t *Terminal) Resize(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset(cols, rows)
}

// Size returns the grid dimensions.
func (t *Terminal) Size() (cols, rows int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cols, t.rows
}

// Cursor returns the cursor position.
func (t *Terminal) Cursor() Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// Cell returns the cell at col, row. Out of range positions yield BlankCell.
func (t *Terminal) Cell(col, row int) Cell {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if col < 0 || row < 0 || col >= t.cols || row >= t.rows {
		return BlankCell
	}
	return t.cells[row*t.cols+col]
}

// Attrs returns the colors applied to newly drawn cells.
func (t *Terminal) Attrs() (fg, bg Color) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fg, t.bg
}

// Snapshot copies the full visible state.
func (t *Terminal) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cells := make([]Cell, len(t.cells))
	copy(cells, t.cells)
	return Snapshot{
		Cols:   t.cols,
		Rows:   t.rows,
		Cells:  cells,
		Cursor: t.cursor,
		FG:     t.fg,
		BG:     t.bg,
	}
}

// Lines returns the text of each row with trailing spaces trimmed.
func (t *Terminal) Lines() []string {
	return t.Snapshot().Lines()
}

func (t *Terminal) drawChar(r rune) {
	switch r {
	case '\n':
		t.cursor.Col = 0
		t.lineFeed()
		return
	case '\r':
		t.cursor.Col = 0
		return
	case '\b':
		if t.cursor.Col > 0 {
			t.cursor.Col--
		}
		return
	}
	if unicode.IsControl(r) {
		return
	}

	w := RuneWidth(r)
	if t.cursor.Col+w > t.cols {
		t.cursor.Col = 0
		t.lineFeed()
	}
	t.cells[t.cursor.Row*t.cols+t.cursor.Col] = Cell{Rune: r, FG: t.fg, BG: t.bg}
	t.cursor.Col += w
	if t.cursor.Col >= t.cols {
		t.cursor.Col = 0
		t.lineFeed()
	}
}

func (t *Terminal) lineFeed() {
	if t.cursor.Row < t.rows-1 {
		t.cursor.Row++
		return
	}
	t.scrollUp()
}

// scrollUp is a no-op on a single-row grid.
func (t *Terminal) scrollUp() {
	if t.rows <= 1 {
		return
	}
	copy(t.cells, t.cells[t.cols:])
	last := t.cells[(t.rows-1)*t.cols:]
	for i := range last {
		last[i] = BlankCell
	}
}

func (t *Terminal) clear() {
	for i := range t.cells {
		t.cells[i] = BlankCell
	}
	t.cursor = Cursor{}
}

func (t *Terminal) moveTo(col, row int) {
	t.cursor = Cursor{
		Col: clamp(col, 0, t.cols-1),
		Row: clamp(row, 0, t.rows-1),
	}
}

func (t *Terminal) resetAttrs() {
	t.fg = DefaultColor
	t.bg = DefaultColor
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Snapshot is an immutable copy of a Terminal's state.
type Snapshot struct {
	Cols   int
	Rows   int
	Cells  []Cell
	Cursor Cursor
	FG     Color
	BG     Color
}

// Cell returns the cell at col, row.
func (s Snapshot) Cell(col, row int) Cell {
	if col < 0 || row < 0 || col >= s.Cols || row >= s.Rows {
		return BlankCell
	}
	return s.Cells[row*s.Cols+col]
}

// Lines returns each row as text with trailing spaces trimmed.
func (s Snapshot) Lines() []string {
	lines := make([]string, s.Rows)
	var sb strings.Builder
	for row := 0; row < s.Rows; row++ {
		sb.Reset()
		for _, c := range s.Cells[row*s.Cols : (row+1)*s.Cols] {
			sb.WriteRune(c.Rune)
		}
		lines[row] = strings.TrimRight(sb.String(), " ")
	}
	return lines
}

// Text returns the rows joined by newlines with trailing blank rows dropped.
func (s Snapshot) Text() string {
	lines := s.Lines()
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
