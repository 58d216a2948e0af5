package feel

import "fmt"

// TokenKind classifies lexical tokens.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokName
	TokNumber
	TokString
	TokAt       // @
	TokQuestion // ?
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPower // **
	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte
	TokComma
	TokDot
	TokDotDot
	TokColon
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokLBrace
	TokRBrace
)

var tokenNames = [...]string{
	TokEOF:      "end of input",
	TokName:     "name",
	TokNumber:   "number",
	TokString:   "string",
	TokAt:       "'@'",
	TokQuestion: "'?'",
	TokPlus:     "'+'",
	TokMinus:    "'-'",
	TokStar:     "'*'",
	TokSlash:    "'/'",
	TokPower:    "'**'",
	TokEq:       "'='",
	TokNeq:      "'!='",
	TokLt:       "'<'",
	TokLte:      "'<='",
	TokGt:       "'>'",
	TokGte:      "'>='",
	TokComma:    "','",
	TokDot:      "'.'",
	TokDotDot:   "'..'",
	TokColon:    "':'",
	TokLParen:   "'('",
	TokRParen:   "')'",
	TokLBracket: "'['",
	TokRBracket: "']'",
	TokLBrace:   "'{'",
	TokRBrace:   "'}'",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexical token. Keywords are lexed as names and recognised by
// the parser, so that they can also appear inside multi-word names such as
// "date and time".
type Token struct {
	Kind TokenKind
	Text string
	Pos  Position
}

func (t Token) String() string {
	switch t.Kind {
	case TokEOF:
		return t.Kind.String()
	case TokString:
		return fmt.Sprintf("string %q", t.Text)
	case TokName, TokNumber:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	}
	return t.Kind.String()
}

var keywords = map[string]bool{
	"and":       true,
	"or":        true,
	"true":      true,
	"false":     true,
	"null":      true,
	"if":        true,
	"then":      true,
	"else":      true,
	"for":       true,
	"in":        true,
	"return":    true,
	"some":      true,
	"every":     true,
	"satisfies": true,
	"between":   true,
	"instance":  true,
	"of":        true,
	"function":  true,
}

// IsKeyword reports whether s is a reserved word of the expression language.
func IsKeyword(s string) bool { return keywords[s] }
