package builder

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gogpu/naga/wgsl"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// ModuleMeta is an analyzed kernel source file.
type ModuleMeta struct {
	Name string
	File string
	// Prelude is GLSL shared by every kernel of the module.
	Prelude string
	Kernels []*KernelMeta
}

// Kernel returns the kernel with the given name.
func (m *ModuleMeta) Kernel(name string) (*KernelMeta, bool) {
	for _, k := range m.Kernels {
		if k.Name == name {
			return k, true
		}
	}
	return nil, false
}

// ParseModule analyzes one kernel source file. A module without a `module`
// declaration is named after the file.
func ParseModule(file, src string) (*ModuleMeta, error) {
	ts, err := newTokenStream(file, src)
	if err != nil {
		return nil, err
	}
	mod := &ModuleMeta{File: file, Name: defaultModuleName(file)}

	if tok := ts.peek(); tok.Kind == wgsl.TokenIdent && tok.Lexeme == "module" {
		ts.next()
		name, err := ts.expectIdent("module name")
		if err != nil {
			return nil, err
		}
		if _, err := ts.expect(wgsl.TokenSemicolon, "`;`"); err != nil {
			return nil, err
		}
		mod.Name = name.Lexeme
	}

	// prelude helpers are compiled into every kernel of the module
	var preludeFeatures device.Features
	for !ts.atEOF() {
		if ts.peek().Kind == wgsl.TokenAt && ts.peekN(1).Lexeme == "prelude" {
			ts.next()
			ts.next()
			open, close, err := ts.skipBalanced()
			if err != nil {
				return nil, err
			}
			mod.Prelude += ts.rawBetween(open, close)
			preludeFeatures |= bodyFeatures(ts.toks[open+1 : close])
			continue
		}
		start := ts.peek()
		k, err := parseKernel(ts, mod.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := mod.Kernel(k.Name); dup {
			return nil, ts.errorf(start, "kernel `%s` is defined more than once", k.Name)
		}
		mod.Kernels = append(mod.Kernels, k)
	}
	for _, k := range mod.Kernels {
		k.Features |= preludeFeatures
	}
	return mod, nil
}

func defaultModuleName(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, base)
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}

func parseKernel(ts *tokenStream, module string) (*KernelMeta, error) {
	var marked bool
	var explicit device.Features
	for ts.peek().Kind == wgsl.TokenAt {
		ts.next()
		attr, err := ts.expectIdent("attribute")
		if err != nil {
			return nil, err
		}
		switch attr.Lexeme {
		case "kernel":
			marked = true
		case "features":
			f, err := parseFeatureList(ts)
			if err != nil {
				return nil, err
			}
			explicit |= f
		default:
			return nil, ts.errorf(attr, "unknown attribute `%s`, expected `kernel` or `features`", attr.Lexeme)
		}
	}

	safety := kernel.Safe
	if ts.acceptWord("unsafe") {
		safety = kernel.Unsafe
	}
	fnTok, err := ts.expect(wgsl.TokenFn, "`@kernel fn`")
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, ts.errorf(fnTok, "functions must be marked `@kernel`")
	}
	nameTok, err := ts.expectIdent("kernel name")
	if err != nil {
		return nil, err
	}

	var specs []SpecMeta
	if ts.peek().Kind == wgsl.TokenLess {
		if specs, err = parseSpecs(ts); err != nil {
			return nil, err
		}
	}

	if _, err := ts.expect(wgsl.TokenLeftParen, "`(`"); err != nil {
		return nil, err
	}
	var params []*ParamBuilder
	for !ts.accept(wgsl.TokenRightParen) {
		p, err := parseArg(ts)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
		if !ts.accept(wgsl.TokenComma) {
			if _, err := ts.expect(wgsl.TokenRightParen, "`,` or `)`"); err != nil {
				return nil, err
			}
			break
		}
	}

	open, close, err := ts.skipBalanced()
	if err != nil {
		return nil, err
	}

	meta, err := DefineKernel(module, nameTok.Lexeme, specs, params...)
	if err != nil {
		var sigErr *SignatureError
		if errors.As(err, &sigErr) {
			return nil, sigErr
		}
		return nil, ts.errorf(nameTok, "%v", err)
	}
	meta.Safety = safety
	meta.Pos = ts.posOf(nameTok)
	meta.Body = ts.rawBetween(open, close)
	meta.BodyLine = ts.toks[open].Line
	meta.Features |= explicit | bodyFeatures(ts.toks[open+1:close])
	return meta, nil
}

func parseFeatureList(ts *tokenStream) (device.Features, error) {
	if _, err := ts.expect(wgsl.TokenLeftParen, "`(`"); err != nil {
		return 0, err
	}
	var f device.Features
	for !ts.accept(wgsl.TokenRightParen) {
		tok, err := ts.expectIdent("feature name")
		if err != nil {
			return 0, err
		}
		flag, err := device.ParseFeature(tok.Lexeme)
		if err != nil {
			return 0, ts.errorf(tok, "%v", err)
		}
		f |= flag
		if !ts.accept(wgsl.TokenComma) {
			if _, err := ts.expect(wgsl.TokenRightParen, "`,` or `)`"); err != nil {
				return 0, err
			}
			break
		}
	}
	return f, nil
}

func parseSpecs(ts *tokenStream) ([]SpecMeta, error) {
	ts.next()
	var specs []SpecMeta
	for !ts.accept(wgsl.TokenGreater) {
		if _, err := ts.expect(wgsl.TokenConst, "`const`"); err != nil {
			return nil, err
		}
		name, err := ts.expectIdent("specialization constant name")
		if err != nil {
			return nil, err
		}
		if _, err := ts.expect(wgsl.TokenColon, "`:`"); err != nil {
			return nil, err
		}
		t, err := parseScalar(ts)
		if err != nil {
			return nil, err
		}
		specs = append(specs, SpecMeta{Name: name.Lexeme, ScalarType: t, ID: len(specs)})
		if !ts.accept(wgsl.TokenComma) {
			if _, err := ts.expect(wgsl.TokenGreater, "`,` or `>`"); err != nil {
				return nil, err
			}
			break
		}
	}
	return specs, nil
}

func isScalarToken(tok wgsl.Token) bool {
	switch tok.Kind {
	case wgsl.TokenIdent, wgsl.TokenF16, wgsl.TokenF32, wgsl.TokenI32, wgsl.TokenU32:
		return true
	}
	return false
}

func parseScalar(ts *tokenStream) (scalar.ScalarType, error) {
	tok := ts.peek()
	if isScalarToken(tok) {
		if t, err := scalar.Parse(tok.Lexeme); err == nil && t.Name() == tok.Lexeme {
			ts.next()
			return t, nil
		}
	}
	return 0, ts.errorf(tok, "expected scalar type (u8, i8, u16, i16, f16, bf16, u32, i32, f32, u64, i64, f64), found %s", describe(tok))
}

func parseArg(ts *tokenStream) (*ParamBuilder, error) {
	kind := kernel.Push
	if ts.accept(wgsl.TokenAt) {
		attr := ts.next()
		switch attr.Lexeme {
		case "global":
			kind = kernel.Global
		case "item":
			kind = kernel.Item
		case "group":
			kind = kernel.Group
		default:
			return nil, ts.errorf(attr, "expected `global`, `item`, or `group`")
		}
	}

	nameTok, err := ts.expectIdent("argument name")
	if err != nil {
		return nil, err
	}
	if tok := ts.peek(); tok.Kind != wgsl.TokenColon {
		return nil, ts.errorf(tok, "expected `:` and a type after `%s`", nameTok.Lexeme)
	}
	ts.next()

	var p *ParamBuilder
	switch kind {
	case kernel.Global:
		p, err = parseGlobalType(ts, nameTok.Lexeme)
	case kernel.Item:
		p, err = parseItemType(ts, nameTok.Lexeme)
	case kernel.Group:
		p, err = parseGroupType(ts, nameTok.Lexeme)
	default:
		p, err = parsePushType(ts, nameTok.Lexeme)
	}
	if err != nil {
		return nil, err
	}
	return p.At(ts.posOf(nameTok)), nil
}

func parseGlobalType(ts *tokenStream, name string) (*ParamBuilder, error) {
	tok := ts.next()
	p := Global(name)
	switch tok.Lexeme {
	case "Slice":
	case "UnsafeSlice":
		p.Mut()
	case "SliceMut":
		return nil, ts.errorf(tok, "`SliceMut` is not allowed for global arguments, try `UnsafeSlice`")
	default:
		return nil, ts.errorf(tok, "expected `Slice` or `UnsafeSlice`, found %s", describe(tok))
	}
	if _, err := ts.expect(wgsl.TokenLess, "`<`"); err != nil {
		return nil, err
	}
	t, err := parseScalar(ts)
	if err != nil {
		return nil, err
	}
	if tok := ts.peek(); tok.Kind == wgsl.TokenComma {
		return nil, ts.errorf(tok, "global slices take no length, use `@group` for shared arrays")
	}
	if _, err := ts.expect(wgsl.TokenGreater, "`>`"); err != nil {
		return nil, err
	}
	return p.Of(t), nil
}

func parseItemType(ts *tokenStream, name string) (*ParamBuilder, error) {
	p := Item(name)
	tok := ts.peek()
	switch {
	case tok.Kind == wgsl.TokenAmpersand:
		ts.next()
		if !ts.acceptWord("mut") {
			return nil, ts.errorf(ts.peek(), "expected `&mut T` or `T`")
		}
		p.Mut()
	case tok.Lexeme == "mut":
		return nil, ts.errorf(tok, "item arguments are mutable through a reference, try `&mut T`")
	case tok.Lexeme == "Slice" || tok.Lexeme == "UnsafeSlice" || tok.Lexeme == "SliceMut":
		return nil, ts.errorf(tok, "item arguments take an element type, `T` or `&mut T`")
	}
	t, err := parseScalar(ts)
	if err != nil {
		return nil, err
	}
	return p.Of(t), nil
}

func parseGroupType(ts *tokenStream, name string) (*ParamBuilder, error) {
	tok := ts.next()
	if tok.Lexeme != "UnsafeSlice" {
		return nil, ts.errorf(tok, "expected `UnsafeSlice<T, LEN>`, found %s", describe(tok))
	}
	if _, err := ts.expect(wgsl.TokenLess, "`<`"); err != nil {
		return nil, err
	}
	t, err := parseScalar(ts)
	if err != nil {
		return nil, err
	}
	if _, err := ts.expect(wgsl.TokenComma, "`,` and a length"); err != nil {
		return nil, err
	}

	var length *LenExpr
	lenTok := ts.peek()
	switch lenTok.Kind {
	case wgsl.TokenIntLiteral:
		ts.next()
		v, err := parseIntLiteral(lenTok.Lexeme)
		if err != nil {
			return nil, ts.errorf(lenTok, "%v", err)
		}
		length = LenLiteral(v)
	case wgsl.TokenIdent:
		ts.next()
		length = LenIdent(lenTok.Lexeme)
	case wgsl.TokenLeftBrace:
		ts.next()
		if length, err = parseLenTokens(ts, wgsl.TokenRightBrace); err != nil {
			return nil, err
		}
		ts.next()
	default:
		return nil, ts.errorf(lenTok, "expected a length: an integer, a specialization constant, or `{ expression }`")
	}
	if tok := ts.peek(); tok.Kind != wgsl.TokenGreater {
		return nil, ts.errorf(tok, "expected `>`, wrap length expressions in braces")
	}
	ts.next()
	return Group(name).Of(t).Len(length), nil
}

func parsePushType(ts *tokenStream, name string) (*ParamBuilder, error) {
	tok := ts.peek()
	switch {
	case tok.Lexeme == "Slice" || tok.Lexeme == "UnsafeSlice" || tok.Lexeme == "SliceMut":
		return nil, ts.errorf(tok, "slice arguments must be marked `@global` or `@item`")
	case tok.Kind == wgsl.TokenAmpersand:
		return nil, ts.errorf(tok, "push arguments are passed by value, use a scalar type")
	}
	t, err := parseScalar(ts)
	if err != nil {
		return nil, err
	}
	return Push(name).Of(t), nil
}
