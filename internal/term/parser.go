package term

import (
	"unicode/utf8"
)

type parserState uint8

const (
	stateGround parserState = iota
	stateEscape
	stateEscapeIntermediate
	stateCSI
	stateOSC
	stateOSCEscape
)

const (
	maxParams     = 16
	maxParamValue = 65535
)

// parser is a byte-at-a-time VT state machine. It keeps all partial state
// (sequence parameters and incomplete UTF-8) between calls, so the result
// of feeding a stream does not depend on how it was chunked.
type parser struct {
	state parserState

	params       [maxParams]int
	nparams      int
	cur          int
	curSet       bool
	private      bool
	intermediate bool

	utf8Buf  [utf8.UTFMax]byte
	utf8Len  int
	utf8Need int
}

func (p *parser) advance(t *Terminal, b byte) {
	switch p.state {
	case stateGround:
		p.ground(t, b)
	case stateEscape:
		p.escape(t, b)
	case stateEscapeIntermediate:
		p.escapeIntermediate(t, b)
	case stateCSI:
		p.csi(t, b)
	case stateOSC:
		p.osc(b)
	case stateOSCEscape:
		if b == '\\' {
			p.state = stateGround
			return
		}
		p.enterEscape()
		p.escape(t, b)
	}
}

func (p *parser) ground(t *Terminal, b byte) {
	if p.utf8Need > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf[p.utf8Len] = b
			p.utf8Len++
			if p.utf8Len == p.utf8Need {
				r, size := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
				if size != p.utf8Len {
					r = utf8.RuneError
				}
				p.utf8Need = 0
				p.utf8Len = 0
				t.drawChar(r)
			}
			return
		}
		// Truncated sequence: replace it, then handle b on its own.
		p.utf8Need = 0
		p.utf8Len = 0
		t.drawChar(utf8.RuneError)
	}

	switch {
	case b == 0x1B:
		p.enterEscape()
	case b < 0x20:
		p.execute(t, b)
	case b == 0x7F:
	case b < 0x80:
		t.drawChar(rune(b))
	case b >= 0xC2 && b <= 0xDF:
		p.startUTF8(b, 2)
	case b >= 0xE0 && b <= 0xEF:
		p.startUTF8(b, 3)
	case b >= 0xF0 && b <= 0xF4:
		p.startUTF8(b, 4)
	default:
		t.drawChar(utf8.RuneError)
	}
}

func (p *parser) startUTF8(b byte, need int) {
	p.utf8Buf[0] = b
	p.utf8Len = 1
	p.utf8Need = need
}

// execute runs a C0 control. Only LF, CR and BS have an effect.
func (p *parser) execute(t *Terminal, b byte) {
	switch b {
	case '\n', '\r', '\b':
		t.drawChar(rune(b))
	}
}

func (p *parser) enterEscape() {
	p.state = stateEscape
	p.intermediate = false
}

func (p *parser) escape(t *Terminal, b byte) {
	switch {
	case b == '[':
		p.enterCSI()
	case b == ']':
		p.state = stateOSC
	case b == 0x1B:
	case b == 0x18 || b == 0x1A:
		p.state = stateGround
	case b < 0x20:
		p.execute(t, b)
	case b <= 0x2F:
		p.state = stateEscapeIntermediate
	case b <= 0x7E:
		p.escDispatch(t, b)
		p.state = stateGround
	default:
		p.state = stateGround
	}
}

func (p *parser) escapeIntermediate(t *Terminal, b byte) {
	switch {
	case b == 0x1B:
		p.enterEscape()
	case b == 0x18 || b == 0x1A:
		p.state = stateGround
	case b < 0x20:
		p.execute(t, b)
	case b <= 0x2F:
	default:
		p.state = stateGround
	}
}

// escDispatch handles two-byte escapes. ESC c (full reset) is the only one
// with an effect.
func (p *parser) escDispatch(t *Terminal, b byte) {
	if b == 'c' {
		t.resetAttrs()
		t.clear()
	}
}

func (p *parser) enterCSI() {
	p.state = stateCSI
	p.nparams = 0
	p.cur = 0
	p.curSet = false
	p.private = false
	p.intermediate = false
}

func (p *parser) csi(t *Terminal, b byte) {
	switch {
	case b >= '0' && b <= '9':
		if p.intermediate {
			return
		}
		p.cur = p.cur*10 + int(b-'0')
		if p.cur > maxParamValue {
			p.cur = maxParamValue
		}
		p.curSet = true
	case b == ';' || b == ':':
		p.pushParam()
	case b >= 0x3C && b <= 0x3F:
		p.private = true
	case b >= 0x20 && b <= 0x2F:
		p.intermediate = true
	case b >= 0x40 && b <= 0x7E:
		if p.curSet || p.nparams > 0 {
			p.pushParam()
		}
		if !p.private && !p.intermediate {
			p.csiDispatch(t, b)
		}
		p.state = stateGround
	case b == 0x1B:
		p.enterEscape()
	case b == 0x18 || b == 0x1A:
		p.state = stateGround
	case b < 0x20:
		p.execute(t, b)
	case b == 0x7F:
	default:
		p.state = stateGround
	}
}

func (p *parser) pushParam() {
	if p.nparams < maxParams {
		p.params[p.nparams] = p.cur
		p.nparams++
	}
	p.cur = 0
	p.curSet = false
}

// param returns parameter i, or def when it is missing or zero.
func (p *parser) param(i, def int) int {
	if i >= p.nparams || p.params[i] == 0 {
		return def
	}
	return p.params[i]
}

func (p *parser) csiDispatch(t *Terminal, final byte) {
	switch final {
	case 'H', 'f':
		t.moveTo(p.param(1, 1)-1, p.param(0, 1)-1)
	case 'J':
		if p.nparams > 0 && p.params[0] == 2 {
			t.clear()
		}
	case 'm':
		p.sgr(t)
	}
}

// sgr applies Select Graphic Rendition. Parameter 0 (or none) resets
// colors; 30-37, 40-47, 90-97, 100-107, 38/48 with 5;n or 2;r;g;b, and
// 39/49 set them. Everything else is ignored.
func (p *parser) sgr(t *Terminal) {
	if p.nparams == 0 {
		t.resetAttrs()
		return
	}
	for i := 0; i < p.nparams; i++ {
		n := p.params[i]
		switch {
		case n == 0:
			t.resetAttrs()
		case n >= 30 && n <= 37:
			t.fg = IndexedColor(uint8(n - 30))
		case n == 39:
			t.fg = DefaultColor
		case n >= 40 && n <= 47:
			t.bg = IndexedColor(uint8(n - 40))
		case n == 49:
			t.bg = DefaultColor
		case n >= 90 && n <= 97:
			t.fg = IndexedColor(uint8(n - 90 + 8))
		case n >= 100 && n <= 107:
			t.bg = IndexedColor(uint8(n - 100 + 8))
		case n == 38 || n == 48:
			c, used, ok := p.extendedColor(i + 1)
			i += used
			if !ok {
				continue
			}
			if n == 38 {
				t.fg = c
			} else {
				t.bg = c
			}
		}
	}
}

// extendedColor parses the 5;n or 2;r;g;b tail starting at params[i] and
// reports how many parameters it consumed.
func (p *parser) extendedColor(i int) (Color, int, bool) {
	if i >= p.nparams {
		return Color{}, 0, false
	}
	switch p.params[i] {
	case 5:
		if i+1 >= p.nparams {
			return Color{}, p.nparams - i, false
		}
		return IndexedColor(uint8(p.params[i+1] & 0xFF)), 2, true
	case 2:
		if i+3 >= p.nparams {
			return Color{}, p.nparams - i, false
		}
		return RGBColor(
			uint8(p.params[i+1]&0xFF),
			uint8(p.params[i+2]&0xFF),
			uint8(p.params[i+3]&0xFF),
		), 4, true
	}
	return Color{}, 1, false
}

func (p *parser) osc(b byte) {
	switch b {
	case 0x07, 0x18, 0x1A:
		p.state = stateGround
	case 0x1B:
		p.state = stateOSCEscape
	}
}
