package feel

import (
	"strings"
)

// nameSet holds the multi-word names the parser joins into a single name.
type nameSet struct {
	names    map[string]bool
	maxWords int
}

func newNameSet(names ...string) *nameSet {
	ns := &nameSet{names: map[string]bool{}, maxWords: 1}
	for _, n := range names {
		ns.add(n)
	}
	return ns
}

func (ns *nameSet) add(name string) {
	words := len(strings.Fields(name))
	if words < 2 {
		return
	}
	ns.names[name] = true
	if words > ns.maxWords {
		ns.maxWords = words
	}
}

func (ns *nameSet) clone() *nameSet {
	c := &nameSet{names: make(map[string]bool, len(ns.names)), maxWords: ns.maxWords}
	for n := range ns.names {
		c.names[n] = true
	}
	return c
}

// fixedNames are multi-word names that are not functions: type names and
// properties of temporal values and ranges.
var fixedNames = []string{
	"date and time",
	"years and months duration",
	"days and time duration",
	"time offset",
	"start included",
	"end included",
}

type parser struct {
	src        string
	toks       []Token
	pos        int
	known      *nameSet
	candidates int
}

func parse(src string, entry Entry, known *nameSet) (Node, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks, known: known}
	if entry == EntryUnaryTests {
		return p.parseUnaryTestsEntry()
	}
	if p.at(TokEOF) {
		return nil, p.errorf("empty expression", "expression")
	}
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.at(TokEOF) {
		return nil, p.errorf("unexpected token", "end of input")
	}
	return n, nil
}

func (p *parser) tok() Token         { return p.toks[p.pos] }
func (p *parser) at(k TokenKind) bool { return p.toks[p.pos].Kind == k }

func (p *parser) peekKind(n int) TokenKind {
	if p.pos+n >= len(p.toks) {
		return TokEOF
	}
	return p.toks[p.pos+n].Kind
}

func (p *parser) atKeyword(kw string) bool {
	t := p.tok()
	return t.Kind == TokName && t.Text == kw
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(msg string, expected ...string) error {
	t := p.tok()
	return &SyntaxError{Source: p.src, Pos: t.Pos, Found: t.String(), Expected: expected, Msg: msg}
}

func (p *parser) expect(k TokenKind) (Token, error) {
	if !p.at(k) {
		return Token{}, p.errorf("unexpected token", k.String())
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errorf("unexpected token", "'"+kw+"'")
	}
	p.next()
	return nil
}

// parseName consumes the longest known multi-word name at the current
// position, or a single non-keyword name token.
func (p *parser) parseName() (string, bool) {
	for n := p.known.maxWords; n >= 2; n-- {
		if p.pos+n > len(p.toks) {
			continue
		}
		words := make([]string, 0, n)
		for i := 0; i < n; i++ {
			t := p.toks[p.pos+i]
			if t.Kind != TokName {
				break
			}
			words = append(words, t.Text)
		}
		if len(words) != n {
			continue
		}
		if name := strings.Join(words, " "); p.known.names[name] {
			p.pos += n
			return name, true
		}
	}
	t := p.tok()
	if t.Kind != TokName || IsKeyword(t.Text) {
		return "", false
	}
	p.next()
	return t.Text, true
}

// parseKeyText consumes the words of a context key up to the ':'.
func (p *parser) parseKeyText() (string, error) {
	if p.at(TokString) {
		return p.next().Text, nil
	}
	var words []string
	for p.at(TokName) {
		words = append(words, p.next().Text)
	}
	if len(words) == 0 {
		return "", p.errorf("invalid context key", "name", "string")
	}
	return strings.Join(words, " "), nil
}

func (p *parser) parseExpression() (Node, error) {
	t := p.tok()
	if t.Kind == TokName {
		switch t.Text {
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "some", "every":
			return p.parseQuantified()
		}
	}
	return p.parseDisjunction()
}

func (p *parser) parseIf() (Node, error) {
	pos := p.next().Pos
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("else"); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &If{nodeBase: nodeBase{P: pos}, Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseIterators() ([]Iterator, error) {
	var its []Iterator
	for {
		name, ok := p.parseName()
		if !ok {
			return nil, p.errorf("invalid iteration variable", "name")
		}
		if err := p.expectKeyword("in"); err != nil {
			return nil, err
		}
		dom, err := p.parseDisjunction()
		if err != nil {
			return nil, err
		}
		it := Iterator{Name: name, Domain: dom}
		if p.at(TokDotDot) {
			p.next()
			if it.End, err = p.parseDisjunction(); err != nil {
				return nil, err
			}
		}
		its = append(its, it)
		if !p.at(TokComma) {
			return its, nil
		}
		p.next()
	}
}

func (p *parser) parseFor() (Node, error) {
	pos := p.next().Pos
	its, err := p.parseIterators()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &For{nodeBase: nodeBase{P: pos}, Iterators: its, Return: body}, nil
}

func (p *parser) parseQuantified() (Node, error) {
	t := p.next()
	its, err := p.parseIterators()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("satisfies"); err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Quantified{nodeBase: nodeBase{P: t.Pos}, Every: t.Text == "every", Iterators: its, Satisfies: body}, nil
}

func (p *parser) parseDisjunction() (Node, error) {
	l, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		pos := p.next().Pos
		r, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		l = &BinaryOp{nodeBase: nodeBase{P: pos}, Op: "or", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseConjunction() (Node, error) {
	l, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		pos := p.next().Pos
		r, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		l = &BinaryOp{nodeBase: nodeBase{P: pos}, Op: "and", L: l, R: r}
	}
	return l, nil
}

var comparisonOps = map[TokenKind]string{
	TokEq:  "=",
	TokNeq: "!=",
	TokLt:  "<",
	TokLte: "<=",
	TokGt:  ">",
	TokGte: ">=",
}

func (p *parser) parseComparison() (Node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.tok()
		if op, ok := comparisonOps[t.Kind]; ok {
			p.next()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = &BinaryOp{nodeBase: nodeBase{P: t.Pos}, Op: op, L: l, R: r}
			continue
		}
		if t.Kind != TokName {
			return l, nil
		}
		switch t.Text {
		case "between":
			p.next()
			lo, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("and"); err != nil {
				return nil, err
			}
			hi, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = &Between{nodeBase: nodeBase{P: t.Pos}, X: l, Lo: lo, Hi: hi}
		case "in":
			p.next()
			tests, err := p.parseInTests()
			if err != nil {
				return nil, err
			}
			l = &In{nodeBase: nodeBase{P: t.Pos}, X: l, Tests: tests}
		case "instance":
			p.next()
			if err := p.expectKeyword("of"); err != nil {
				return nil, err
			}
			typ, ok := p.parseName()
			if !ok {
				return nil, p.errorf("invalid type name", "type name")
			}
			l = &InstanceOf{nodeBase: nodeBase{P: t.Pos}, X: l, Type: typ}
		default:
			return l, nil
		}
	}
}

// parseInTests parses the right-hand side of `in`: either a parenthesised
// list of positive unary tests or a single positive unary test.
func (p *parser) parseInTests() (*UnaryTests, error) {
	pos := p.tok().Pos
	if p.at(TokLParen) {
		save, saveCand := p.pos, p.candidates
		p.next()
		tests, err := p.parsePositiveUnaryTests()
		if err == nil && p.at(TokRParen) {
			p.next()
			return &UnaryTests{nodeBase: nodeBase{P: pos}, Tests: tests}, nil
		}
		p.pos, p.candidates = save, saveCand
	}
	test, err := p.parsePositiveUnaryTest()
	if err != nil {
		return nil, err
	}
	return &UnaryTests{nodeBase: nodeBase{P: pos}, Tests: []UnaryTest{test}}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		t := p.next()
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &BinaryOp{nodeBase: nodeBase{P: t.Pos}, Op: t.Text, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	l, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) {
		t := p.next()
		r, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		l = &BinaryOp{nodeBase: nodeBase{P: t.Pos}, Op: t.Text, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parsePower() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokPower) {
		t := p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &BinaryOp{nodeBase: nodeBase{P: t.Pos}, Op: "**", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Node, error) {
	if !p.at(TokMinus) {
		return p.parsePostfix()
	}
	pos := p.next().Pos
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if lit, ok := x.(*Literal); ok {
		if n, ok := lit.Value.(Number); ok {
			return &Literal{nodeBase: nodeBase{P: pos}, Value: Negate(n)}, nil
		}
	}
	return &UnaryOp{nodeBase: nodeBase{P: pos}, X: x}, nil
}

func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.tok()
		switch t.Kind {
		case TokDot:
			p.next()
			name, ok := p.parseName()
			if !ok {
				// keywords are valid property names
				if !p.at(TokName) {
					return nil, p.errorf("invalid property name", "name")
				}
				name = p.next().Text
			}
			x = &Path{nodeBase: nodeBase{P: t.Pos}, X: x, Name: name}
		case TokLBracket:
			p.next()
			f, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			x = &Filter{nodeBase: nodeBase{P: t.Pos}, X: x, Filter: f}
		case TokLParen:
			p.next()
			call := &Call{nodeBase: nodeBase{P: t.Pos}, Fn: x}
			if err := p.parseArgs(call); err != nil {
				return nil, err
			}
			x = call
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs(call *Call) error {
	if p.at(TokRParen) {
		p.next()
		return nil
	}
	for {
		if err := p.parseArg(call); err != nil {
			return err
		}
		if p.at(TokComma) {
			p.next()
			continue
		}
		_, err := p.expect(TokRParen)
		return err
	}
}

func (p *parser) parseArg(call *Call) error {
	if p.at(TokName) {
		save := p.pos
		if name, ok := p.parseName(); ok && p.at(TokColon) {
			p.next()
			v, err := p.parseExpression()
			if err != nil {
				return err
			}
			call.Named = append(call.Named, NamedArg{Name: name, Value: v})
			return nil
		}
		p.pos = save
	}
	if len(call.Named) > 0 {
		return p.errorf("positional argument after named argument", "name")
	}
	v, err := p.parseExpression()
	if err != nil {
		return err
	}
	call.Args = append(call.Args, v)
	return nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.tok()
	base := nodeBase{P: t.Pos}
	switch t.Kind {
	case TokNumber:
		p.next()
		n, err := ParseNumber(t.Text)
		if err != nil {
			return nil, &SyntaxError{Source: p.src, Pos: t.Pos, Found: t.String(), Msg: err.Error()}
		}
		return &Literal{nodeBase: base, Value: n}, nil
	case TokString:
		p.next()
		return &Literal{nodeBase: base, Value: String(t.Text)}, nil
	case TokAt:
		p.next()
		s, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		v, err := parseTemporalLiteral(s.Text)
		if err != nil {
			return nil, &SyntaxError{Source: p.src, Pos: s.Pos, Found: s.String(), Msg: err.Error()}
		}
		return &Literal{nodeBase: base, Value: v}, nil
	case TokQuestion:
		p.next()
		p.candidates++
		return &CandidateRef{nodeBase: base}, nil
	case TokLParen:
		p.next()
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.at(TokDotDot) {
			return p.finishRange(base, x, false)
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return x, nil
	case TokLBracket:
		p.next()
		if p.at(TokRBracket) {
			p.next()
			return &ListLit{nodeBase: base}, nil
		}
		first, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.at(TokDotDot) {
			return p.finishRange(base, first, true)
		}
		items := []Node{first}
		for p.at(TokComma) {
			p.next()
			it, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		if _, err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return &ListLit{nodeBase: base, Items: items}, nil
	case TokRBracket:
		p.next()
		start, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.at(TokDotDot) {
			return nil, p.errorf("invalid interval", "'..'")
		}
		return p.finishRange(base, start, false)
	case TokLBrace:
		return p.parseContext()
	case TokName:
		switch t.Text {
		case "true", "false":
			p.next()
			return &Literal{nodeBase: base, Value: Boolean(t.Text == "true")}, nil
		case "null":
			p.next()
			return &Literal{nodeBase: base, Value: Null}, nil
		case "function":
			return p.parseFunctionLit()
		case "if", "for", "some", "every":
			return p.parseExpression()
		}
		name, ok := p.parseName()
		if !ok {
			return nil, p.errorf("unexpected keyword", "expression")
		}
		return &NameRef{nodeBase: base, Name: name}, nil
	}
	return nil, p.errorf("unexpected token", "expression")
}

// finishRange parses `.. end` and the closing bracket of an interval.
func (p *parser) finishRange(base nodeBase, start Node, startIncluded bool) (Node, error) {
	if _, err := p.expect(TokDotDot); err != nil {
		return nil, err
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	r := &RangeLit{nodeBase: base, Start: start, End: end, StartIncluded: startIncluded}
	switch p.tok().Kind {
	case TokRBracket:
		r.EndIncluded = true
	case TokRParen, TokLBracket:
	default:
		return nil, p.errorf("unterminated interval", "']'", "')'", "'['")
	}
	p.next()
	return r, nil
}

func (p *parser) parseContext() (Node, error) {
	base := nodeBase{P: p.next().Pos}
	ctx := &ContextLit{nodeBase: base}
	if p.at(TokRBrace) {
		p.next()
		return ctx, nil
	}
	for {
		key, err := p.parseKeyText()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ctx.Entries = append(ctx.Entries, ContextEntry{Key: key, Value: v})
		if p.at(TokComma) {
			p.next()
			continue
		}
		if _, err := p.expect(TokRBrace); err != nil {
			return nil, err
		}
		return ctx, nil
	}
}

func (p *parser) parseFunctionLit() (Node, error) {
	base := nodeBase{P: p.next().Pos}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var params []string
	for !p.at(TokRParen) {
		name, ok := p.parseName()
		if !ok {
			return nil, p.errorf("invalid parameter name", "name")
		}
		params = append(params, name)
		if !p.at(TokComma) {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &FunctionLit{nodeBase: base, Params: params, Body: body}, nil
}

func (p *parser) parseUnaryTestsEntry() (Node, error) {
	pos := p.tok().Pos
	switch {
	case p.at(TokEOF), p.at(TokMinus) && p.peekKind(1) == TokEOF:
		p.next()
		return &UnaryTests{nodeBase: nodeBase{P: pos}, Tests: []UnaryTest{&AnyTest{nodeBase: nodeBase{P: pos}}}}, nil
	case p.atKeyword("not") && p.peekKind(1) == TokLParen:
		save := p.pos
		p.next()
		p.next()
		tests, err := p.parsePositiveUnaryTests()
		if err == nil && p.at(TokRParen) && p.peekKind(1) == TokEOF {
			p.next()
			return &UnaryTests{nodeBase: nodeBase{P: pos}, Tests: tests, Negated: true}, nil
		}
		// not(x) used as an ordinary expression, e.g. `not(?) , 5`
		p.pos, p.candidates = save, 0
	}
	tests, err := p.parsePositiveUnaryTests()
	if err != nil {
		return nil, err
	}
	if !p.at(TokEOF) {
		return nil, p.errorf("unexpected token", "','", "end of input")
	}
	return &UnaryTests{nodeBase: nodeBase{P: pos}, Tests: tests}, nil
}

func (p *parser) parsePositiveUnaryTests() ([]UnaryTest, error) {
	var tests []UnaryTest
	for {
		t, err := p.parsePositiveUnaryTest()
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
		if !p.at(TokComma) {
			return tests, nil
		}
		p.next()
	}
}

func (p *parser) parsePositiveUnaryTest() (UnaryTest, error) {
	t := p.tok()
	if op, ok := comparisonOps[t.Kind]; ok {
		p.next()
		end, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &CompareTest{nodeBase: nodeBase{P: t.Pos}, Op: op, Endpoint: end}, nil
	}
	before := p.candidates
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ExprTest{nodeBase: nodeBase{P: t.Pos}, Expr: x, UsesCandidate: p.candidates > before}, nil
}

// parseTemporalLiteral resolves the text of an @"..." literal.
func parseTemporalLiteral(s string) (Value, error) {
	switch {
	case strings.HasPrefix(s, "P"), strings.HasPrefix(s, "-P"):
		return ParseDuration(s)
	case strings.Contains(s, "T"):
		return ParseDateTime(s)
	case strings.Contains(s, ":"):
		return ParseTime(s)
	}
	return ParseDate(s)
}
