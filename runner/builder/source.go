package builder

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gogpu/naga/wgsl"
)

// Pos is a location in a kernel source file. Line and Column are 1-based.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// SignatureError is a kernel authoring mistake found during analysis. The
// first SignatureError aborts analysis of the whole module.
type SignatureError struct {
	Pos Pos
	Msg string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// tokenStream walks the tokens of one kernel source file. Kernel sources
// share WGSL's lexical structure, so the wgsl lexer does the scanning.
type tokenStream struct {
	file       string
	src        string
	toks       []wgsl.Token
	pos        int
	lineStarts []int
}

func newTokenStream(file, src string) (*tokenStream, error) {
	toks, err := wgsl.NewLexer(src).Tokenize()
	if err != nil {
		return nil, &SignatureError{Pos: Pos{File: file, Line: 1, Column: 1}, Msg: err.Error()}
	}
	lineStarts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return &tokenStream{file: file, src: src, toks: toks, lineStarts: lineStarts}, nil
}

func (ts *tokenStream) peek() wgsl.Token {
	return ts.toks[ts.pos]
}

func (ts *tokenStream) peekN(n int) wgsl.Token {
	if ts.pos+n >= len(ts.toks) {
		return ts.toks[len(ts.toks)-1]
	}
	return ts.toks[ts.pos+n]
}

func (ts *tokenStream) next() wgsl.Token {
	tok := ts.toks[ts.pos]
	if tok.Kind != wgsl.TokenEOF {
		ts.pos++
	}
	return tok
}

func (ts *tokenStream) atEOF() bool {
	return ts.peek().Kind == wgsl.TokenEOF
}

// accept consumes the next token if it has the given kind.
func (ts *tokenStream) accept(kind wgsl.TokenKind) bool {
	if ts.peek().Kind == kind {
		ts.next()
		return true
	}
	return false
}

// acceptWord consumes the next token if its text is word.
func (ts *tokenStream) acceptWord(word string) bool {
	if ts.peek().Lexeme == word {
		ts.next()
		return true
	}
	return false
}

func (ts *tokenStream) expect(kind wgsl.TokenKind, what string) (wgsl.Token, error) {
	tok := ts.peek()
	if tok.Kind != kind {
		return tok, ts.errorf(tok, "expected %s, found %s", what, describe(tok))
	}
	return ts.next(), nil
}

func (ts *tokenStream) expectIdent(what string) (wgsl.Token, error) {
	return ts.expect(wgsl.TokenIdent, what)
}

func (ts *tokenStream) posOf(tok wgsl.Token) Pos {
	return Pos{File: ts.file, Line: tok.Line, Column: tok.Column}
}

func (ts *tokenStream) errorf(tok wgsl.Token, format string, args ...interface{}) *SignatureError {
	return &SignatureError{Pos: ts.posOf(tok), Msg: fmt.Sprintf(format, args...)}
}

// offset converts a token position back to a byte offset in src. The lexer
// counts columns in runes.
func (ts *tokenStream) offset(tok wgsl.Token) int {
	if tok.Line-1 >= len(ts.lineStarts) {
		return len(ts.src)
	}
	off := ts.lineStarts[tok.Line-1]
	for col := 1; col < tok.Column && off < len(ts.src); col++ {
		_, size := utf8.DecodeRuneInString(ts.src[off:])
		off += size
	}
	return off
}

// skipBalanced consumes tokens from an opening brace to its matching closing
// brace and returns both tokens' indices.
func (ts *tokenStream) skipBalanced() (open, close int, err error) {
	open = ts.pos
	openTok, err := ts.expect(wgsl.TokenLeftBrace, "`{`")
	if err != nil {
		return 0, 0, err
	}
	depth := 1
	for depth > 0 {
		tok := ts.next()
		switch tok.Kind {
		case wgsl.TokenLeftBrace:
			depth++
		case wgsl.TokenRightBrace:
			depth--
		case wgsl.TokenEOF:
			return 0, 0, ts.errorf(openTok, "unclosed `{`")
		}
	}
	return open, ts.pos - 1, nil
}

// rawBetween returns the source text strictly between tokens i and j.
func (ts *tokenStream) rawBetween(i, j int) string {
	start := ts.offset(ts.toks[i]) + len(ts.toks[i].Lexeme)
	end := ts.offset(ts.toks[j])
	if start > end {
		return ""
	}
	return ts.src[start:end]
}

func describe(tok wgsl.Token) string {
	switch tok.Kind {
	case wgsl.TokenEOF:
		return "end of file"
	case wgsl.TokenIdent:
		return fmt.Sprintf("`%s`", tok.Lexeme)
	}
	if tok.Lexeme == "" {
		return tok.Kind.String()
	}
	return fmt.Sprintf("`%s`", strings.TrimSpace(tok.Lexeme))
}
