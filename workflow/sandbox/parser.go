package sandbox

import (
	"strconv"
)

const maxDepth = 64

// keywords that may never appear as plain names.
var keywords = nameSet(
	"and", "or", "not", "in", "is", "if", "else", "for", "while",
	"def", "class", "return", "yield", "await", "async", "del",
	"global", "nonlocal", "with", "as", "try", "except", "raise",
	"assert", "pass", "import", "from", "lambda",
)

// --- Recursive descent parser ---

type exprParser struct {
	tokens []token
	pos    int
	depth  int
}

func parse(tokens []token) (node, error) {
	p := &exprParser{tokens: tokens}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tkEOF {
		return nil, p.unexpected(t)
	}
	return n, nil
}

func (p *exprParser) peek() token {
	return p.tokens[p.pos]
}

func (p *exprParser) peekAt(offset int) token {
	if p.pos+offset < len(p.tokens) {
		return p.tokens[p.pos+offset]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *exprParser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tkName && t.value == word
}

func (p *exprParser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tkOp {
		return false
	}
	for _, op := range ops {
		if t.value == op {
			return true
		}
	}
	return false
}

func (p *exprParser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, syntaxErrorf(t.pos, "expected %s", what)
	}
	return p.advance(), nil
}

func (p *exprParser) unexpected(t token) error {
	if t.kind == tkEOF {
		return syntaxErrorf(t.pos, "unexpected end of expression")
	}
	if t.kind == tkName {
		if v := keywordViolation(t); v != nil {
			return v
		}
	}
	return syntaxErrorf(t.pos, "unexpected token %q", t.value)
}

func keywordViolation(t token) error {
	switch t.value {
	case "import", "from":
		return &Violation{Construct: "import", Detail: "import statements are not allowed", Pos: t.pos}
	case "lambda":
		return &Violation{Construct: "lambda", Detail: "function definitions are not allowed", Pos: t.pos}
	}
	return nil
}

// parseExpr handles: then if cond else other
func (p *exprParser) parseExpr() (node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, syntaxErrorf(p.peek().pos, "expression nested deeper than %d", maxDepth)
	}

	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return then, nil
	}
	at := p.advance().pos
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("else") {
		return nil, syntaxErrorf(p.peek().pos, "expected else")
	}
	p.advance()
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condNode{at: at, cond: cond, then: then, els: els}, nil
}

// parseOr handles: expr or expr, expr || expr
func (p *exprParser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOp("||") {
		at := p.advance().pos
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &boolNode{at: at, op: "or", left: left, right: right}
	}
	return left, nil
}

// parseAnd handles: expr and expr, expr && expr
func (p *exprParser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOp("&&") {
		at := p.advance().pos
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &boolNode{at: at, op: "and", left: left, right: right}
	}
	return left, nil
}

// parseNot handles: not expr, !expr
func (p *exprParser) parseNot() (node, error) {
	if p.isKeyword("not") || p.isOp("!") {
		at := p.advance().pos
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{at: at, op: "not", operand: operand}, nil
	}
	return p.parseComparison()
}

// parseComparison handles chained comparisons including in / not in.
func (p *exprParser) parseComparison() (node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	cmp := &compareNode{at: first.pos(), first: first}
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.rest = append(cmp.rest, right)
	}
	if len(cmp.ops) == 0 {
		return first, nil
	}
	return cmp, nil
}

func (p *exprParser) comparisonOp() (string, bool) {
	t := p.peek()
	switch {
	case t.kind == tkOp:
		switch t.value {
		case "==", "!=", "<", "<=", ">", ">=":
			p.advance()
			return t.value, true
		}
	case t.kind == tkName && t.value == "in":
		p.advance()
		return "in", true
	case t.kind == tkName && t.value == "is":
		p.advance()
		if p.isKeyword("not") {
			p.advance()
			return "is not", true
		}
		return "is", true
	case t.kind == tkName && t.value == "not":
		if next := p.peekAt(1); next.kind == tkName && next.value == "in" {
			p.advance()
			p.advance()
			return "not in", true
		}
	}
	return "", false
}

// parseAdditive handles: expr (+|-) expr
func (p *exprParser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		t := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{at: t.pos, op: t.value, left: left, right: right}
	}
	return left, nil
}

// parseMultiplicative handles: expr (*|/|//|%) expr
func (p *exprParser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "//", "%") {
		t := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{at: t.pos, op: t.value, left: left, right: right}
	}
	return left, nil
}

// parseUnary handles: -expr, +expr
func (p *exprParser) parseUnary() (node, error) {
	if p.isOp("-", "+") {
		t := p.advance()
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, syntaxErrorf(t.pos, "expression nested deeper than %d", maxDepth)
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{at: t.pos, op: t.value, operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower handles: base ** exponent (right associative, binds tighter than unary minus on the left)
func (p *exprParser) parsePower() (node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	t := p.advance()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &binaryNode{at: t.pos, op: "**", left: base, right: exp}, nil
}

// parsePostfix handles calls, attribute access and subscripts.
func (p *exprParser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch t.kind {
		case tkLParen:
			p.advance()
			args, err := p.parseItems(tkRParen, ")")
			if err != nil {
				return nil, err
			}
			n = &callNode{at: t.pos, fn: n, args: args}
		case tkDot:
			p.advance()
			name, err := p.expect(tkName, "attribute name")
			if err != nil {
				return nil, err
			}
			n = &attrNode{at: name.pos, target: n, name: name.value}
		case tkLBracket:
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.peek().kind == tkColon {
				return nil, syntaxErrorf(p.peek().pos, "slices are not supported")
			}
			if _, err := p.expect(tkRBracket, "]"); err != nil {
				return nil, err
			}
			n = &indexNode{at: t.pos, target: n, index: idx}
		default:
			return n, nil
		}
	}
}

// parsePrimary handles literals, names, parenthesized expressions and containers.
func (p *exprParser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tkInt:
		p.advance()
		v, err := strconv.ParseInt(t.value, 10, 64)
		if err != nil {
			return nil, syntaxErrorf(t.pos, "integer literal %s out of range", t.value)
		}
		return &literalNode{at: t.pos, value: v}, nil

	case tkFloat:
		p.advance()
		v, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, syntaxErrorf(t.pos, "invalid number %s", t.value)
		}
		return &literalNode{at: t.pos, value: v}, nil

	case tkString:
		p.advance()
		s := t.value
		// Adjacent string literals concatenate.
		for p.peek().kind == tkString {
			s += p.advance().value
		}
		return &literalNode{at: t.pos, value: s}, nil

	case tkName:
		switch t.value {
		case "True", "true":
			p.advance()
			return &literalNode{at: t.pos, value: true}, nil
		case "False", "false":
			p.advance()
			return &literalNode{at: t.pos, value: false}, nil
		case "None", "null":
			p.advance()
			return &literalNode{at: t.pos, value: nil}, nil
		}
		if keywords[t.value] {
			return nil, p.unexpected(t)
		}
		p.advance()
		return &nameNode{at: t.pos, name: t.value}, nil

	case tkLParen:
		p.advance()
		if p.peek().kind == tkRParen {
			p.advance()
			return &listNode{at: t.pos, tuple: true}, nil
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tkComma {
			if _, err := p.expect(tkRParen, ")"); err != nil {
				return nil, err
			}
			return first, nil
		}
		p.advance()
		rest, err := p.parseItems(tkRParen, ")")
		if err != nil {
			return nil, err
		}
		return &listNode{at: t.pos, items: append([]node{first}, rest...), tuple: true}, nil

	case tkLBracket:
		p.advance()
		items, err := p.parseItems(tkRBracket, "]")
		if err != nil {
			return nil, err
		}
		return &listNode{at: t.pos, items: items}, nil

	case tkLBrace:
		p.advance()
		return p.parseDict(t.pos)

	default:
		return nil, p.unexpected(t)
	}
}

// parseItems parses a comma separated list up to and including the closing token.
// A trailing comma is accepted.
func (p *exprParser) parseItems(closing tokenKind, what string) ([]node, error) {
	var items []node
	for p.peek().kind != closing {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().kind != tkComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(closing, what); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *exprParser) parseDict(at int) (node, error) {
	d := &dictNode{at: at}
	for p.peek().kind != tkRBrace {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkColon, ":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.keys = append(d.keys, key)
		d.values = append(d.values, value)
		if p.peek().kind != tkComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(tkRBrace, "}"); err != nil {
		return nil, err
	}
	return d, nil
}
