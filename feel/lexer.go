package feel

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexer struct {
	src  string
	pos  int
	line int
	col  int
	toks []Token
}

// Tokenize splits src into tokens, ending with a TokEOF token.
func Tokenize(src string) ([]Token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.toks = append(lx.toks, tok)
		if tok.Kind == TokEOF {
			return lx.toks, nil
		}
	}
}

func (lx *lexer) position() Position {
	return Position{Offset: lx.pos, Line: lx.line, Col: lx.col}
}

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	return r
}

func (lx *lexer) peekAt(n int) rune {
	p := lx.pos
	for i := 0; i < n && p < len(lx.src); i++ {
		_, w := utf8.DecodeRuneInString(lx.src[p:])
		p += w
	}
	if p >= len(lx.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.src[p:])
	return r
}

func (lx *lexer) advance() rune {
	r, w := utf8.DecodeRuneInString(lx.src[lx.pos:])
	lx.pos += w
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) errorf(pos Position, found, msg string) error {
	return &SyntaxError{Source: lx.src, Pos: pos, Found: found, Msg: msg}
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.pos < len(lx.src) {
		r := lx.peek()
		switch {
		case unicode.IsSpace(r):
			lx.advance()
		case r == '/' && lx.peekAt(1) == '/':
			for lx.pos < len(lx.src) && lx.peek() != '\n' {
				lx.advance()
			}
		case r == '/' && lx.peekAt(1) == '*':
			start := lx.position()
			lx.advance()
			lx.advance()
			for {
				if lx.pos >= len(lx.src) {
					return lx.errorf(start, "", "unterminated comment")
				}
				if lx.peek() == '*' && lx.peekAt(1) == '/' {
					lx.advance()
					lx.advance()
					break
				}
				lx.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func (lx *lexer) next() (Token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	start := lx.position()
	if lx.pos >= len(lx.src) {
		return Token{Kind: TokEOF, Pos: start}, nil
	}
	r := lx.peek()
	switch {
	case isNameStart(r):
		return lx.name(start), nil
	case isDigit(r), r == '.' && isDigit(lx.peekAt(1)):
		return lx.number(start), nil
	case r == '"':
		return lx.str(start)
	}

	lx.advance()
	simple := func(k TokenKind, text string) (Token, error) {
		return Token{Kind: k, Text: text, Pos: start}, nil
	}
	switch r {
	case '@':
		return simple(TokAt, "@")
	case '?':
		return simple(TokQuestion, "?")
	case '+':
		return simple(TokPlus, "+")
	case '-':
		return simple(TokMinus, "-")
	case '*':
		if lx.peek() == '*' {
			lx.advance()
			return simple(TokPower, "**")
		}
		return simple(TokStar, "*")
	case '/':
		return simple(TokSlash, "/")
	case '=':
		return simple(TokEq, "=")
	case '!':
		if lx.peek() == '=' {
			lx.advance()
			return simple(TokNeq, "!=")
		}
	case '<':
		if lx.peek() == '=' {
			lx.advance()
			return simple(TokLte, "<=")
		}
		return simple(TokLt, "<")
	case '>':
		if lx.peek() == '=' {
			lx.advance()
			return simple(TokGte, ">=")
		}
		return simple(TokGt, ">")
	case ',':
		return simple(TokComma, ",")
	case '.':
		if lx.peek() == '.' {
			lx.advance()
			return simple(TokDotDot, "..")
		}
		return simple(TokDot, ".")
	case ':':
		return simple(TokColon, ":")
	case '(':
		return simple(TokLParen, "(")
	case ')':
		return simple(TokRParen, ")")
	case '[':
		return simple(TokLBracket, "[")
	case ']':
		return simple(TokRBracket, "]")
	case '{':
		return simple(TokLBrace, "{")
	case '}':
		return simple(TokRBrace, "}")
	}
	return Token{}, lx.errorf(start, strconv.QuoteRune(r), "unexpected character")
}

func isNameStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '\''
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (lx *lexer) name(start Position) Token {
	begin := lx.pos
	for lx.pos < len(lx.src) && isNamePart(lx.peek()) {
		lx.advance()
	}
	return Token{Kind: TokName, Text: lx.src[begin:lx.pos], Pos: start}
}

// number lexes digits with an optional fraction. A '.' followed by another
// '.' is left alone so that "1..10" lexes as a range.
func (lx *lexer) number(start Position) Token {
	begin := lx.pos
	for isDigit(lx.peek()) {
		lx.advance()
	}
	if lx.peek() == '.' && isDigit(lx.peekAt(1)) {
		lx.advance()
		for isDigit(lx.peek()) {
			lx.advance()
		}
	}
	return Token{Kind: TokNumber, Text: lx.src[begin:lx.pos], Pos: start}
}

func (lx *lexer) str(start Position) (Token, error) {
	lx.advance() // opening quote
	var sb strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return Token{}, lx.errorf(start, "", "unterminated string")
		}
		r := lx.advance()
		switch r {
		case '"':
			return Token{Kind: TokString, Text: sb.String(), Pos: start}, nil
		case '\\':
			if lx.pos >= len(lx.src) {
				return Token{}, lx.errorf(start, "", "unterminated string")
			}
			esc := lx.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\', '\'':
				sb.WriteRune(esc)
			case 'u':
				if lx.pos+4 > len(lx.src) {
					return Token{}, lx.errorf(lx.position(), "", "invalid unicode escape")
				}
				code, err := strconv.ParseUint(lx.src[lx.pos:lx.pos+4], 16, 32)
				if err != nil {
					return Token{}, lx.errorf(lx.position(), lx.src[lx.pos:lx.pos+4], "invalid unicode escape")
				}
				for i := 0; i < 4; i++ {
					lx.advance()
				}
				sb.WriteRune(rune(code))
			default:
				sb.WriteByte('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
}
