package jsontext

import (
	"fmt"
	"io"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/internal/scanner"
	"github.com/ESP32-Reference/flatbuffers-streaming-json/token"
)

// A Parser reads JSON input and reports its structure to a Visitor.
type Parser struct {
	scanr   *scanner.Scanner
	visitor Visitor
}

// NewParser sets up a new Parser instance to read from the given input.
func NewParser(in io.Reader, v Visitor) *Parser {
	return &Parser{scanr: scanner.NewScanner(in), visitor: v}
}

// Parse consumes the whole input and drives the visitor through it.  It
// parses a stream of JSON values, stopping at the first syntax error or the
// first non-nil error returned by a visitor method.
func Parse(in io.Reader, v Visitor) error {
	return NewParser(in, v).Parse()
}

func (p *Parser) Parse() error {
	for {
		b, err := p.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		if b == scanner.EOF {
			return nil
		}
		if err := p.parseValue(); err != nil {
			return err
		}
	}
}

// parseValue parses a single JSON value, dispatching visitor calls as the
// value's structure unfolds.
func (p *Parser) parseValue() error {
	b, err := p.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	switch b {
	case scanner.EOF:
		return p.syntaxError("unexpected end of input")
	case '"':
		s, err := p.parseString()
		if err != nil {
			return err
		}
		return p.visitor.Scalar(s)
	case '[':
		return p.parseArray()
	case '{':
		return p.parseObject()
	case 't':
		if err := p.checkBytes(trueBytes); err != nil {
			return err
		}
		return p.visitor.Scalar(token.TrueScalar)
	case 'f':
		if err := p.checkBytes(falseBytes); err != nil {
			return err
		}
		return p.visitor.Scalar(token.FalseScalar)
	case 'n':
		if err := p.checkBytes(nullBytes); err != nil {
			return err
		}
		return p.visitor.Scalar(token.NullScalar)
	default:
		if b == '-' || b >= '0' && b <= '9' {
			n, err := p.parseNumber()
			if err != nil {
				return err
			}
			return p.visitor.Scalar(n)
		}
		return p.unexpectedByte("unexpected")
	}
}

func (p *Parser) parseArray() error {
	if err := p.expectByte('['); err != nil {
		return err
	}
	if err := p.visitor.StartArray(); err != nil {
		return err
	}
	b, err := p.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	if b == ']' {
		p.scanr.Read()
		return p.visitor.EndArray()
	}
	for i := 0; ; i++ {
		if err := p.visitor.ArrayItem(i); err != nil {
			return err
		}
		if err := p.parseValue(); err != nil {
			return err
		}
		b, err = p.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		switch b {
		case ']':
			p.scanr.Read()
			return p.visitor.EndArray()
		case ',':
			p.scanr.Read()
		default:
			return p.unexpectedByte("expected ']' or ',', got")
		}
	}
}

func (p *Parser) parseObject() error {
	if err := p.expectByte('{'); err != nil {
		return err
	}
	if err := p.visitor.StartObject(); err != nil {
		return err
	}
	b, err := p.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	if b == '}' {
		p.scanr.Read()
		return p.visitor.EndObject()
	}
	for {
		if b != '"' {
			return p.unexpectedByte("expected '\"', got")
		}
		key, err := p.parseString()
		if err != nil {
			return err
		}
		key.TypeAndFlags |= token.KeyMask
		b, err = p.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		if b != ':' {
			return p.unexpectedByte("expected ':', got")
		}
		p.scanr.Read()
		if err := p.visitor.BeginField(key); err != nil {
			return err
		}
		if err := p.parseValue(); err != nil {
			return err
		}
		if err := p.visitor.EndField(); err != nil {
			return err
		}
		b, err = p.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		switch b {
		case '}':
			p.scanr.Read()
			return p.visitor.EndObject()
		case ',':
			p.scanr.Read()
			b, err = p.scanr.SkipSpaceAndPeek()
			if err != nil {
				return err
			}
		default:
			return p.unexpectedByte("expected '}' or ',', got")
		}
	}
}

func (p *Parser) parseString() (*token.Scalar, error) {
	p.scanr.StartToken()
	if err := p.expectByteNoToken('"'); err != nil {
		return nil, err
	}
	isAlnum := true
	isUnescaped := true
	firstChar := true
	for {
		b, err := p.scanr.Read()
		if err != nil {
			return nil, err
		}
		switch b {
		case scanner.EOF:
			return nil, p.syntaxError("unterminated string")
		case '\\':
			isUnescaped = false
			x, err := p.scanr.Read()
			if err != nil {
				return nil, err
			}
			switch x {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				continue
			case 'u':
				for i := 0; i < 4; i++ {
					b, err = p.scanr.Read()
					if err != nil {
						return nil, err
					}
					if !(b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F') {
						p.scanr.Back()
						return nil, p.unexpectedByte("expected hex, got")
					}
				}
			default:
				p.scanr.Back()
				return nil, p.unexpectedByte("invalid escape character")
			}
		case '"':
			stringBytes := p.scanr.EndToken()
			scalar := token.NewScalar(token.String, stringBytes)
			if isAlnum {
				scalar.TypeAndFlags |= token.AlnumMask
			}
			if isUnescaped {
				scalar.TypeAndFlags |= token.UnescapedMask
			}
			return scalar, nil
		default:
			if scanner.IsCtrl(b) {
				p.scanr.Back()
				return nil, p.unexpectedByte("invalid control character in string")
			}
			if isAlnum {
				if firstChar {
					isAlnum = scanner.IsAlpha(b)
					firstChar = false
				} else {
					isAlnum = scanner.IsAlnum(b)
				}
			}
		}
	}
}

func (p *Parser) parseNumber() (*token.Scalar, error) {
	p.scanr.StartToken()
	var n int
	b, err := p.scanr.Read()
	if err != nil {
		return nil, err
	}

	// Sign part
	if b == '-' {
		b, err = p.scanr.Read()
		if err != nil {
			return nil, err
		}
	}

	// Integer part
	if b == '0' {
		b, err = p.scanr.Read()
		if err != nil {
			return nil, err
		}
	} else if b >= '1' && b <= '9' {
		b, _, err = p.readDigits()
		if err != nil {
			return nil, err
		}
	} else {
		p.scanr.Back()
		return nil, p.unexpectedByte("expected digit, got")
	}

	// Fraction part
	if b == '.' {
		b, n, err = p.readDigits()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			p.scanr.Back()
			return nil, p.unexpectedByte("expected digit, got")
		}
	}

	// Exponent part
	if b == 'e' || b == 'E' {
		b, err = p.scanr.Peek()
		if err != nil {
			return nil, err
		}
		if b == '-' || b == '+' {
			p.scanr.Read()
		}
		_, n, err = p.readDigits()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			p.scanr.Back()
			return nil, p.unexpectedByte("expected digit, got")
		}
	}
	p.scanr.Back()
	return token.NewScalar(token.Number, p.scanr.EndToken()), nil
}

func (p *Parser) readDigits() (byte, int, error) {
	var n int
	for {
		b, err := p.scanr.Read()
		if err != nil {
			return 0, n, err
		}
		if !scanner.IsDigit(b) {
			return b, n, nil
		}
		n++
	}
}

func (p *Parser) checkBytes(expected []byte) error {
	for _, xb := range expected {
		if err := p.expectByte(xb); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) expectByte(xb byte) error {
	b, err := p.scanr.Read()
	if err != nil {
		return err
	}
	if b != xb {
		p.scanr.Back()
		return p.unexpectedByte("expected %q, got", xb)
	}
	return nil
}

// expectByteNoToken is expectByte for use while recording a token, where the
// scanner cannot step back over the token start.
func (p *Parser) expectByteNoToken(xb byte) error {
	b, err := p.scanr.Read()
	if err != nil {
		return err
	}
	if b != xb {
		return p.syntaxError(fmt.Sprintf("expected %q, got %q", xb, b))
	}
	return nil
}

func (p *Parser) unexpectedByte(msg string, args ...interface{}) error {
	pos := p.scanr.CurrentPos()
	b, err := p.scanr.Read()
	if err != nil {
		return err
	}
	if b == scanner.EOF {
		return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(msg, args...) + ": <EOF>"}
	}
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf("%s: %q", fmt.Sprintf(msg, args...), b)}
}

func (p *Parser) syntaxError(msg string) error {
	return &SyntaxError{Pos: p.scanr.CurrentPos(), Msg: msg}
}

var (
	trueBytes  = []byte("true")
	falseBytes = []byte("false")
	nullBytes  = []byte("null")
)
