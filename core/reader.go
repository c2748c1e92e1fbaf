package mal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type token struct {
	text string
	pos  int // byte offset into the input
}

func (t token) isComment() bool {
	return strings.HasPrefix(t.text, ";")
}

// tokenize splits input the way the reader expects: ~@, single punctuation,
// strings (terminated or not), ; comments, and maximal atom runs. Whitespace
// and commas separate tokens and are dropped.
func tokenize(input string) []token {
	var tokens []token
	pos := 0
	for pos < len(input) {
		ch := input[pos]
		switch {
		case ch == ',' || isSpace(ch):
			pos++
		case ch == '~' && pos+1 < len(input) && input[pos+1] == '@':
			tokens = append(tokens, token{text: "~@", pos: pos})
			pos += 2
		case strings.IndexByte("[]{}()'`~^@", ch) >= 0:
			tokens = append(tokens, token{text: input[pos : pos+1], pos: pos})
			pos++
		case ch == '"':
			start := pos
			pos++
			for pos < len(input) {
				if input[pos] == '\\' && pos+1 < len(input) {
					pos += 2
					continue
				}
				if input[pos] == '"' {
					pos++
					break
				}
				pos++
			}
			tokens = append(tokens, token{text: input[start:pos], pos: start})
		case ch == ';':
			start := pos
			for pos < len(input) && input[pos] != '\n' {
				pos++
			}
			tokens = append(tokens, token{text: input[start:pos], pos: start})
		default:
			start := pos
			for pos < len(input) && !isDelimiter(input[pos]) {
				pos++
			}
			tokens = append(tokens, token{text: input[start:pos], pos: start})
		}
	}
	return tokens
}

func isSpace(ch byte) bool {
	return ch < 0x80 && unicode.IsSpace(rune(ch))
}

func isDelimiter(ch byte) bool {
	return isSpace(ch) || strings.IndexByte(`[]{}('"`+"`"+`,;)`, ch) >= 0
}

type reader struct {
	tokens []token
	pos    int
}

func (r *reader) peek() (token, bool) {
	if r.pos >= len(r.tokens) {
		return token{}, false
	}
	return r.tokens[r.pos], true
}

func (r *reader) next() (token, bool) {
	tok, ok := r.peek()
	if ok {
		r.pos++
	}
	return tok, ok
}

// skipComments advances past comment tokens and reports whether a
// non-comment token remains.
func (r *reader) skipComments() bool {
	for {
		tok, ok := r.peek()
		if !ok {
			return false
		}
		if !tok.isComment() {
			return true
		}
		r.pos++
	}
}

// ReadStr parses exactly one form from input. Trailing comments are allowed;
// any other trailing token is an error.
func ReadStr(input string) (Value, error) {
	r := &reader{tokens: tokenize(input)}
	form, err := r.readForm()
	if err != nil {
		return Value{}, err
	}
	if r.skipComments() {
		tok, _ := r.peek()
		return Value{}, fmt.Errorf("unexpected input after form at position %d", tok.pos)
	}
	return form, nil
}

// ReadAll parses every form in input. Input holding only whitespace and
// comments yields no forms and no error.
func ReadAll(input string) ([]Value, error) {
	r := &reader{tokens: tokenize(input)}
	var forms []Value
	for r.skipComments() {
		form, err := r.readForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return forms, nil
}

func (r *reader) readForm() (Value, error) {
	tok, ok := r.peek()
	if !ok {
		return Value{}, ErrEndOfInput
	}
	switch {
	case tok.text == "(":
		return r.readList()
	case tok.isComment():
		r.pos++
		return r.readForm()
	case tok.text == ")":
		return Value{}, fmt.Errorf("unexpected ')' at position %d", tok.pos)
	case tok.text == "'":
		return r.readShorthand("quote")
	case tok.text == "`":
		return r.readShorthand("quasiquote")
	case tok.text == "~":
		return r.readShorthand("unquote")
	case tok.text == "~@":
		return r.readShorthand("splice-unquote")
	case len(tok.text) == 1 && strings.Contains("[]{}^@", tok.text):
		return Value{}, fmt.Errorf("unsupported reader syntax %q at position %d", tok.text, tok.pos)
	default:
		r.pos++
		return readAtom(tok)
	}
}

func (r *reader) readList() (Value, error) {
	open, _ := r.next()
	elems := []Value{}
	for {
		if !r.skipComments() {
			return Value{}, &UnbalancedError{Delim: "(", Pos: open.pos}
		}
		tok, _ := r.peek()
		if tok.text == ")" {
			r.pos++
			return Value{Kind: ValList, List: elems}, nil
		}
		elem, err := r.readForm()
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, elem)
	}
}

// readShorthand turns 'x into (quote x) and friends.
func (r *reader) readShorthand(name string) (Value, error) {
	r.pos++
	inner, err := r.readForm()
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: ValList, List: []Value{SymbolVal(name), inner}}, nil
}

func readAtom(tok token) (Value, error) {
	text := tok.text
	switch {
	case text == "true":
		return BoolVal(true), nil
	case text == "false":
		return BoolVal(false), nil
	case text == "nil":
		return NilVal(), nil
	case strings.HasPrefix(text, `"`):
		return readString(tok)
	case strings.HasPrefix(text, ":"):
		return KeywordVal(text[1:]), nil
	case isDigits(text):
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("integer literal %s out of range at position %d", text, tok.pos)
		}
		return IntVal(n), nil
	default:
		return SymbolVal(text), nil
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// readString strips the quotes and decodes escapes. A token that does not end
// in an unescaped quote was cut off by the end of input.
func readString(tok token) (Value, error) {
	text := tok.text
	var buf strings.Builder
	i := 1
	for i < len(text) {
		ch := text[i]
		if ch == '\\' {
			if i+1 >= len(text) {
				break
			}
			switch esc := text[i+1]; esc {
			case 'n':
				buf.WriteByte('\n')
			case 't':
				buf.WriteByte('\t')
			case '\\':
				buf.WriteByte('\\')
			case '"':
				buf.WriteByte('"')
			default:
				return Value{}, fmt.Errorf("unknown escape sequence \\%c at position %d", esc, tok.pos+i)
			}
			i += 2
			continue
		}
		if ch == '"' {
			return StringVal(buf.String()), nil
		}
		buf.WriteByte(ch)
		i++
	}
	return Value{}, &UnbalancedError{Delim: `"`, Pos: tok.pos}
}
