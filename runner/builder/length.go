package builder

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/naga/wgsl"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/notargets/krnl/scalar"
)

// LenExpr is the length of a group array: an integer expression over
// integer literals and specialization constants. The device evaluates it as
// a specialization-constant expression, the host evaluates it with Eval.
type LenExpr struct {
	root lenNode
}

// errLenDomain marks values an expression is not defined for (division by
// zero, oversized shifts). It is not an authoring error on its own.
var errLenDomain = errors.New("length expression undefined")

// errLenRange marks a literal, constant or intermediate result outside the
// unsigned 32-bit range the device computes lengths in.
var errLenRange = errors.New("length out of range")

const maxLenValue = 1<<32 - 1

func lenValue(v int64) (int64, error) {
	if v < 0 || v > maxLenValue {
		return 0, fmt.Errorf("%w: %d", errLenRange, v)
	}
	return v, nil
}

type lenNode interface {
	eval(env map[string]int64) (int64, error)
	glsl(sb *strings.Builder)
	idents(visit func(string))
}

type lenLit struct{ v int64 }

type lenIdent struct{ name string }

type lenUnary struct{ x lenNode }

type lenBinary struct {
	op   string
	x, y lenNode
}

type lenCall struct {
	fn   string
	x, y lenNode
}

func (n lenLit) eval(map[string]int64) (int64, error) { return lenValue(n.v) }
func (n lenLit) glsl(sb *strings.Builder)              { fmt.Fprintf(sb, "%du", n.v) }
func (n lenLit) idents(func(string))                   {}

func (n lenIdent) eval(env map[string]int64) (int64, error) {
	v, ok := env[n.name]
	if !ok {
		return 0, fmt.Errorf("unknown specialization constant `%s`", n.name)
	}
	return lenValue(v)
}
func (n lenIdent) glsl(sb *strings.Builder)    { fmt.Fprintf(sb, "uint(%s)", n.name) }
func (n lenIdent) idents(visit func(string)) { visit(n.name) }

func (n lenUnary) eval(env map[string]int64) (int64, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	return lenValue(-x)
}
func (n lenUnary) glsl(sb *strings.Builder) {
	sb.WriteString("(0u - ")
	n.x.glsl(sb)
	sb.WriteString(")")
}
func (n lenUnary) idents(visit func(string)) { n.x.idents(visit) }

func (n lenBinary) eval(env map[string]int64) (int64, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	y, err := n.y.eval(env)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return lenValue(x + y)
	case "-":
		return lenValue(x - y)
	case "*":
		if p := uint64(x) * uint64(y); p > maxLenValue {
			return 0, fmt.Errorf("%w: %d * %d", errLenRange, x, y)
		}
		return x * y, nil
	case "/", "%":
		if y == 0 {
			return 0, errLenDomain
		}
		if n.op == "/" {
			return x / y, nil
		}
		return x % y, nil
	case "<<", ">>":
		if y < 0 || y > 31 {
			return 0, errLenDomain
		}
		if n.op == "<<" {
			return lenValue(x << uint(y))
		}
		return x >> uint(y), nil
	case "&":
		return x & y, nil
	case "|":
		return x | y, nil
	default:
		return x ^ y, nil
	}
}
func (n lenBinary) glsl(sb *strings.Builder) {
	sb.WriteString("(")
	n.x.glsl(sb)
	sb.WriteString(" " + n.op + " ")
	n.y.glsl(sb)
	sb.WriteString(")")
}
func (n lenBinary) idents(visit func(string)) {
	n.x.idents(visit)
	n.y.idents(visit)
}

func (n lenCall) eval(env map[string]int64) (int64, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	y, err := n.y.eval(env)
	if err != nil {
		return 0, err
	}
	if (n.fn == "min") == (x < y) {
		return x, nil
	}
	return y, nil
}

// glsl avoids min/max since extended instructions are not allowed in
// specialization-constant expressions.
func (n lenCall) glsl(sb *strings.Builder) {
	cmp := " < "
	if n.fn == "max" {
		cmp = " > "
	}
	sb.WriteString("(")
	n.x.glsl(sb)
	sb.WriteString(cmp)
	n.y.glsl(sb)
	sb.WriteString(" ? ")
	n.x.glsl(sb)
	sb.WriteString(" : ")
	n.y.glsl(sb)
	sb.WriteString(")")
}
func (n lenCall) idents(visit func(string)) {
	n.x.idents(visit)
	n.y.idents(visit)
}

// LenLiteral returns a constant length.
func LenLiteral(n int64) *LenExpr {
	return &LenExpr{root: lenLit{v: n}}
}

// LenIdent returns a length equal to a specialization constant.
func LenIdent(name string) *LenExpr {
	return &LenExpr{root: lenIdent{name: name}}
}

// ParseLenExpr parses a length expression such as "N * 2 + 1".
func ParseLenExpr(src string) (*LenExpr, error) {
	ts, err := newTokenStream("", src)
	if err != nil {
		return nil, err
	}
	e, err := parseLenTokens(ts, wgsl.TokenEOF)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// parseLenTokens parses an expression up to (not including) a token of kind
// end.
func parseLenTokens(ts *tokenStream, end wgsl.TokenKind) (*LenExpr, error) {
	p := &lenParser{ts: ts}
	root, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if tok := ts.peek(); tok.Kind != end {
		return nil, ts.errorf(tok, "unexpected %s in length expression", describe(tok))
	}
	return &LenExpr{root: root}, nil
}

var lenPrecedence = map[wgsl.TokenKind]int{
	wgsl.TokenPipe:           1,
	wgsl.TokenCaret:          2,
	wgsl.TokenAmpersand:      3,
	wgsl.TokenLessLess:       4,
	wgsl.TokenGreaterGreater: 4,
	wgsl.TokenPlus:           5,
	wgsl.TokenMinus:          5,
	wgsl.TokenStar:           6,
	wgsl.TokenSlash:          6,
	wgsl.TokenPercent:        6,
}

// lenOpPrecedence is lenPrecedence keyed by operator spelling.
var lenOpPrecedence = map[string]int{
	"|": 1, "^": 2, "&": 3,
	"<<": 4, ">>": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

type lenParser struct {
	ts *tokenStream
}

func (p *lenParser) binary(minPrec int) (lenNode, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.ts.peek()
		prec, ok := lenPrecedence[tok.Kind]
		if !ok || prec <= minPrec {
			return x, nil
		}
		p.ts.next()
		y, err := p.binary(prec)
		if err != nil {
			return nil, err
		}
		x = lenBinary{op: tok.Lexeme, x: x, y: y}
	}
}

func (p *lenParser) unary() (lenNode, error) {
	tok := p.ts.next()
	switch tok.Kind {
	case wgsl.TokenMinus:
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return lenUnary{x: x}, nil
	case wgsl.TokenIntLiteral:
		v, err := parseIntLiteral(tok.Lexeme)
		if err != nil {
			return nil, p.ts.errorf(tok, "%v", err)
		}
		return lenLit{v: v}, nil
	case wgsl.TokenLeftParen:
		x, err := p.binary(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.ts.expect(wgsl.TokenRightParen, "`)`"); err != nil {
			return nil, err
		}
		return x, nil
	case wgsl.TokenIdent:
		if (tok.Lexeme == "min" || tok.Lexeme == "max") && p.ts.peek().Kind == wgsl.TokenLeftParen {
			return p.call(tok.Lexeme)
		}
		return lenIdent{name: tok.Lexeme}, nil
	}
	return nil, p.ts.errorf(tok, "expected integer, specialization constant or `(`, found %s", describe(tok))
}

func (p *lenParser) call(fn string) (lenNode, error) {
	p.ts.next()
	x, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.ts.expect(wgsl.TokenComma, "`,`"); err != nil {
		return nil, err
	}
	y, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.ts.expect(wgsl.TokenRightParen, "`)`"); err != nil {
		return nil, err
	}
	return lenCall{fn: fn, x: x, y: y}, nil
}

func parseIntLiteral(lexeme string) (int64, error) {
	s := strings.TrimRight(lexeme, "ui")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %q", lexeme)
	}
	return v, nil
}

// Eval evaluates e with the given specialization-constant values.
func (e *LenExpr) Eval(specs map[string]int64) (int64, error) {
	return e.root.eval(specs)
}

// GLSL renders e as an unsigned GLSL specialization-constant expression.
func (e *LenExpr) GLSL() string {
	var sb strings.Builder
	e.root.glsl(&sb)
	return sb.String()
}

// Idents returns the distinct identifiers e refers to, sorted.
func (e *LenExpr) Idents() []string {
	seen := make(map[string]bool)
	e.root.idents(func(name string) { seen[name] = true })
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsConstant reports whether e does not depend on any specialization
// constant.
func (e *LenExpr) IsConstant() bool {
	return len(e.Idents()) == 0
}

// String renders e in source syntax with the parentheses its structure
// requires.
func (e *LenExpr) String() string { return lenString(e.root) }

func lenString(n lenNode) string {
	switch n := n.(type) {
	case lenLit:
		return strconv.FormatInt(n.v, 10)
	case lenIdent:
		return n.name
	case lenUnary:
		switch n.x.(type) {
		case lenUnary, lenBinary:
			return "-(" + lenString(n.x) + ")"
		}
		return "-" + lenString(n.x)
	case lenCall:
		return n.fn + "(" + lenString(n.x) + ", " + lenString(n.y) + ")"
	case lenBinary:
		prec := lenOpPrecedence[n.op]
		return lenOperand(n.x, prec, false) + " " + n.op + " " + lenOperand(n.y, prec, true)
	}
	return ""
}

// lenOperand parenthesizes binary operands that bind looser than their
// parent, and right operands of equal precedence.
func lenOperand(n lenNode, parent int, right bool) string {
	s := lenString(n)
	if b, ok := n.(lenBinary); ok {
		if p := lenOpPrecedence[b.op]; p < parent || (right && p == parent) {
			return "(" + s + ")"
		}
	}
	return s
}

// representativeValues are the sample values each integer specialization
// constant takes when checking a length expression.
var representativeValues = []int64{1, 2, 3, 4, 7, 8, 16, 32, 64, 256}

const maxLenSamples = 4096

func representativesFor(t scalar.ScalarType) []int64 {
	max := int64(1)<<(8*t.Size()-1) - 1
	if !t.IsSigned() && t.Size() < 8 {
		max = int64(1)<<(8*t.Size()) - 1
	}
	var out []int64
	for _, v := range representativeValues {
		if v <= max {
			out = append(out, v)
		}
	}
	return out
}

// CheckLenExpr verifies e can be evaluated against specs. Every identifier
// must name an integer specialization constant. For every combination of
// representative values e is either undefined (division by zero, oversized
// shifts) or stays within the unsigned 32-bit range in every subexpression,
// and at least one combination is defined.
func CheckLenExpr(e *LenExpr, specs []SpecMeta) error {
	byName := make(map[string]SpecMeta, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	names := e.Idents()
	lens := make([]int, len(names))
	samples := make([][]int64, len(names))
	for i, name := range names {
		s, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown specialization constant `%s`", name)
		}
		if !s.ScalarType.IsInteger() {
			return fmt.Errorf("specialization constant `%s` is %s, lengths must be integers", name, s.ScalarType.Name())
		}
		samples[i] = representativesFor(s.ScalarType)
		lens[i] = len(samples[i])
	}

	env := make(map[string]int64, len(names))
	check := func() (bool, error) {
		_, err := e.Eval(env)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errLenDomain):
			return false, nil
		case errors.Is(err, errLenRange) && len(names) == 0:
			return false, fmt.Errorf("length `%s` is not a valid array length", e)
		case errors.Is(err, errLenRange):
			return false, fmt.Errorf("length `%s` is not a valid array length for %s", e, describeEnv(names, env))
		}
		return false, err
	}

	if len(names) == 0 {
		ok, err := check()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("length `%s` is not a valid array length", e)
		}
		return nil
	}

	defined := false
	gen := combin.NewCartesianGenerator(lens)
	product := make([]int, len(names))
	for n := 0; n < maxLenSamples && gen.Next(); n++ {
		gen.Product(product)
		for i, name := range names {
			env[name] = samples[i][product[i]]
		}
		ok, err := check()
		if err != nil {
			return err
		}
		defined = defined || ok
	}
	if !defined {
		return fmt.Errorf("length `%s` has no valid value for any specialization", e)
	}
	return nil
}

func describeEnv(names []string, env map[string]int64) string {
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s = %d", name, env[name])
	}
	return strings.Join(parts, ", ")
}
