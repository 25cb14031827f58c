package value

import (
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"
)

// TokenKind classifies a Reader token.
type TokenKind int

const (
	TokenScalar TokenKind = iota
	TokenBeginObject
	TokenEndObject
	TokenBeginArray
	TokenEndArray
)

// Token is one step through a JSON document.
type Token struct {
	Kind TokenKind
	// Key is the member name when the token starts an object member.
	Key string
	// Value is set for TokenScalar.
	Value Value
}

type scope uint8

const (
	scopeObject scope = iota
	scopeArray
)

type readerState uint8

const (
	wantValue readerState = iota
	wantValueOrEnd
	wantKey
	wantKeyOrEnd
	wantColon
	wantCommaOrEnd
	wantEOF
)

// Reader walks a JSON document token by token. It keeps an explicit stack
// instead of recursing, checks the grammar as it goes and runs in time
// linear in the input.
type Reader struct {
	data  []byte
	tok   *json.Tokenizer
	stack []scope
	state readerState
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, tok: json.NewTokenizer(data)}
}

// Depth is the number of containers currently open.
func (r *Reader) Depth() int { return len(r.stack) }

// Offset is the byte position just past the last token returned.
func (r *Reader) Offset() int { return len(r.data) - r.tok.Remaining() }

// Next returns the next token, or io.EOF once the top-level value and any
// trailing whitespace have been consumed.
func (r *Reader) Next() (Token, error) {
	var key string
	for {
		if !r.tok.Next() {
			if r.tok.Err != nil {
				return Token{}, fmt.Errorf("%w: %v", ErrInvalidJSON, r.tok.Err)
			}
			if r.state == wantEOF {
				return Token{}, io.EOF
			}
			return Token{}, r.syntax("unexpected end of input")
		}
		d := r.tok.Delim

		switch r.state {
		case wantEOF:
			return Token{}, r.syntax("unexpected data after top-level value")

		case wantKeyOrEnd, wantKey:
			if d == '}' && r.state == wantKeyOrEnd {
				return r.end(TokenEndObject), nil
			}
			if d != 0 || !r.tok.Value.String() {
				return Token{}, r.syntax("expected object key")
			}
			key = string(r.tok.String())
			r.state = wantColon
			continue

		case wantColon:
			if d != ':' {
				return Token{}, r.syntax("expected ':' after object key")
			}
			r.state = wantValue
			continue

		case wantCommaOrEnd:
			top := r.stack[len(r.stack)-1]
			switch {
			case d == ',' && top == scopeObject:
				r.state = wantKey
				continue
			case d == ',':
				r.state = wantValue
				continue
			case d == '}' && top == scopeObject:
				return r.end(TokenEndObject), nil
			case d == ']' && top == scopeArray:
				return r.end(TokenEndArray), nil
			}
			return Token{}, r.syntax("expected ',' or end of container")

		case wantValueOrEnd:
			if d == ']' {
				return r.end(TokenEndArray), nil
			}
		}

		return r.value(key)
	}
}

// Valid reports whether data is exactly one well-formed JSON document.
func Valid(data []byte) bool {
	r := NewReader(data)
	for {
		if _, err := r.Next(); err != nil {
			return errors.Is(err, io.EOF)
		}
	}
}

// Skip consumes the rest of the container whose begin token was just
// returned and reports how many direct children it held.
func (r *Reader) Skip() (int, error) {
	base := len(r.stack)
	if base == 0 {
		return 0, errors.New("value: Skip called outside a container")
	}
	n := 0
	for {
		t, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, r.syntax("unexpected end of input")
			}
			return n, err
		}
		switch t.Kind {
		case TokenEndObject, TokenEndArray:
			if len(r.stack) < base {
				return n, nil
			}
		case TokenBeginObject, TokenBeginArray:
			if len(r.stack) == base+1 {
				n++
			}
		default:
			if len(r.stack) == base {
				n++
			}
		}
	}
}

func (r *Reader) value(key string) (Token, error) {
	switch r.tok.Delim {
	case '{':
		r.stack = append(r.stack, scopeObject)
		r.state = wantKeyOrEnd
		return Token{Kind: TokenBeginObject, Key: key}, nil
	case '[':
		r.stack = append(r.stack, scopeArray)
		r.state = wantValueOrEnd
		return Token{Kind: TokenBeginArray, Key: key}, nil
	case 0:
		v, err := r.scalar()
		if err != nil {
			return Token{}, err
		}
		r.afterValue()
		return Token{Kind: TokenScalar, Key: key, Value: v}, nil
	default:
		return Token{}, r.syntax(fmt.Sprintf("unexpected %q", rune(r.tok.Delim)))
	}
}

func (r *Reader) scalar() (Value, error) {
	raw := r.tok.Value
	switch {
	case raw.Null():
		return Null(), nil
	case raw.True():
		return Bool(true), nil
	case raw.False():
		return Bool(false), nil
	case raw.Number():
		return parseNumber(string(raw)), nil
	case raw.String():
		return String(string(r.tok.String())), nil
	default:
		return Null(), r.syntax("unexpected token")
	}
}

func (r *Reader) end(kind TokenKind) Token {
	r.stack = r.stack[:len(r.stack)-1]
	r.afterValue()
	return Token{Kind: kind}
}

func (r *Reader) afterValue() {
	if len(r.stack) == 0 {
		r.state = wantEOF
	} else {
		r.state = wantCommaOrEnd
	}
}

func (r *Reader) syntax(msg string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrInvalidJSON, msg, r.Offset())
}
