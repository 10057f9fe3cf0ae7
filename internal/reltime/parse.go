package reltime

import (
	"strings"
	"time"
)

// maxMagnitude bounds a single offset. Calendar units scaled by 12 or 7
// stay well inside int and the resolved year inside time.Time's range.
const maxMagnitude = 1_000_000_000

// absoluteLayouts are tried in order when the text is not relative.
// Values without a zone are interpreted as UTC.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

type parseState int

const (
	expectSign parseState = iota
	inDigits
	inUnit
)

// Parse parses relative time text or, failing a base token match, an
// absolute timestamp. Base and unit tokens are case-insensitive.
func Parse(text string) (Time, error) {
	s := asciiUpper(strings.TrimSpace(text))
	base, rest, ok := matchBase(s)
	if !ok {
		return parseAbsolute(text)
	}

	p := &offsetParser{input: s, start: len(s) - len(rest)}
	offsets, err := p.parse()
	if err != nil {
		return Time{}, err
	}
	return Time{Base: base, Offsets: offsets}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level defaults.
func MustParse(text string) Time {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func matchBase(s string) (Base, string, bool) {
	for _, t := range baseTokens {
		if strings.HasPrefix(s, t.token) {
			return t.base, s[len(t.token):], true
		}
	}
	return 0, s, false
}

type offsetParser struct {
	input string
	start int

	offsets   []Offset
	sign      int
	magnitude int
	digitsAt  int
	unitAt    int
}

func (p *offsetParser) parse() ([]Offset, error) {
	state := expectSign
	for i := p.start; i < len(p.input); i++ {
		c := p.input[i]
		switch state {
		case expectSign:
			switch {
			case isSpace(c):
			case c == '+':
				p.beginOffset(1, i)
				state = inDigits
			case c == '-':
				p.beginOffset(-1, i)
				state = inDigits
			default:
				return nil, p.errorAt(i, "expected '+' or '-'")
			}

		case inDigits:
			switch {
			case isDigit(c):
				p.magnitude = p.magnitude*10 + int(c-'0')
				if p.magnitude > maxMagnitude {
					return nil, p.errorAt(p.digitsAt, "offset magnitude too large")
				}
			case i == p.digitsAt:
				return nil, p.errorAt(i, "expected digit")
			case isLetter(c):
				p.unitAt = i
				state = inUnit
			default:
				return nil, p.errorAt(i, "expected unit")
			}

		case inUnit:
			if isLetter(c) {
				continue
			}
			if err := p.endOffset(i); err != nil {
				return nil, err
			}
			state = expectSign
			if c == '+' || c == '-' {
				// Reprocess the sign as the start of the next offset.
				i--
				continue
			}
			if !isSpace(c) {
				return nil, p.errorAt(i, "expected '+' or '-'")
			}
		}
	}

	switch state {
	case inDigits:
		return nil, p.errorAt(len(p.input), "incomplete offset")
	case inUnit:
		if err := p.endOffset(len(p.input)); err != nil {
			return nil, err
		}
	}
	return p.offsets, nil
}

func (p *offsetParser) beginOffset(sign, at int) {
	p.sign = sign
	p.magnitude = 0
	p.digitsAt = at + 1
}

func (p *offsetParser) endOffset(end int) error {
	unit, ok := unitTokens[p.input[p.unitAt:end]]
	if !ok {
		return p.errorAt(p.unitAt, "unknown unit "+p.input[p.unitAt:end])
	}
	p.offsets = append(p.offsets, Offset{Magnitude: p.sign * p.magnitude, Unit: unit})
	return nil
}

func (p *offsetParser) errorAt(pos int, msg string) *FormatError {
	return &FormatError{Input: p.input, Pos: pos, Message: msg}
}

func parseAbsolute(text string) (Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return At(t), nil
		}
	}
	return Time{}, &FormatError{Input: s, Pos: 0, Message: "not a relative time or a recognized timestamp"}
}

func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isSpace(c byte) bool  { return c == ' ' || c == '\t' }
