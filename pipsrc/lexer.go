package pipsrc

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

type stateFunc func() stateFunc

// Lexer splits program text into tokens.
type Lexer struct {
	r io.RuneReader

	peeking   []rune
	err       error
	state     stateFunc
	bufOffset Pos
	buf       []rune
	output    chan Token
}

func NewLexer(r io.RuneReader) *Lexer {
	l := &Lexer{
		r: r,

		output: make(chan Token, 2),
	}
	l.state = l.lexInit
	return l
}

func (l *Lexer) Next() (Token, error) {
	for len(l.output) == 0 && l.err == nil {
		l.state = l.state()
	}
	if l.err != nil {
		return Token{}, l.err
	}
	return <-l.output, nil
}

// emit creates a token from the current buffer with type ty and emits it.
// emit clears the buffer
func (l *Lexer) emit(ty TokenType) {
	if ty == EOF {
		l.buf = l.buf[:0]
	}
	tokSize := Pos(len(l.buf))
	l.output <- Token{
		ty: ty,
		span: Span{
			Begin: l.bufOffset,
			End:   l.bufOffset + tokSize,
		},
		text: string(l.buf),
	}
	l.bufOffset += tokSize
	l.buf = l.buf[:0]
}

// read consumes input
// if an error is encountered it sets l.err and returns eofRune
func (l *Lexer) read() rune {
	if len(l.peeking) > 0 {
		var r rune
		l.peeking, r = pop(l.peeking)
		l.buf = append(l.buf, r)
		return r
	}
	r, _, err := l.r.ReadRune()
	if err != nil {
		if err != io.EOF {
			l.err = err
		}
		r = eofRune
	}
	l.buf = append(l.buf, r)
	return r
}

// back puts the last read rune back into the input.
func (l *Lexer) back() {
	var r rune
	l.buf, r = pop(l.buf)
	l.peeking = append(l.peeking, r)
}

func (l *Lexer) peek() rune {
	if len(l.peeking) == 0 {
		l.read()
		l.back()
	}
	return l.peeking[len(l.peeking)-1]
}

func (l *Lexer) lexInit() stateFunc {
	r := l.read()
	switch {
	case r == eofRune:
		l.back()
		return l.lexEnd
	case isWhitespace(r):
		l.back()
		return l.skipWhitespace
	case r == '(':
		l.emit(LParen)
	case r == ')':
		l.emit(RParen)
	case r == '+' || isDecimal(r):
		l.back()
		return l.lexInt
	case r == ';':
		if l.accept(";") {
			return l.lexComment
		}
		return l.errorf("single ; is not a comment")
	case isLetter(r):
		l.back()
		return l.lexSymbol
	default:
		return l.errorf("illegal character %q at %d", r, l.bufOffset)
	}
	return l.lexInit
}

func (l *Lexer) lexSymbol() stateFunc {
	l.accum(isSymbol)
	if r := l.peek(); !isWhitespace(r) && !isOneOf(r, "()") && r != eofRune {
		return l.errorf("improperly terminated symbol %q", r)
	}
	l.emit(TokSymbol)
	return l.lexInit
}

func (l *Lexer) lexInt() stateFunc {
	l.accept("+")
	digits := "0123456789"
	if l.accept("0") {
		// check for hex, octal and binary
		if l.accept("xX") {
			digits = "0123456789abcdefABCDEF"
		} else if l.accept("oO") {
			digits = "01234567"
		} else if l.accept("bB") {
			digits = "01"
		}
	}
	digits += "_"
	l.acceptRun(digits)
	if r := l.peek(); !isWhitespace(r) && !isOneOf(r, "()") && r != eofRune {
		return l.errorf("improperly terminated integer %q", r)
	}
	l.emit(TokInt)
	return l.lexInit
}

func (l *Lexer) lexComment() stateFunc {
	l.accum(func(r rune) bool {
		return r != '\n' && r != eofRune
	})
	l.emit(TokComment)
	return l.lexInit
}

// lexEnd is the terminal state of the lexer, indicating that it will only return EOF tokens.
func (l *Lexer) lexEnd() stateFunc {
	l.emit(EOF)
	return l.lexEnd
}

func (l *Lexer) accept(valid string) bool {
	if r := l.read(); r != eofRune && strings.ContainsRune(valid, r) {
		return true
	}
	l.back()
	return false
}

func (l *Lexer) acceptRun(valid string) {
	for l.accept(valid) {
	}
}

func (l *Lexer) ignore() {
	l.buf, _ = pop(l.buf)
	l.bufOffset++
}

func (l *Lexer) accum(fn func(rune) bool) {
	for {
		r := l.read()
		if !fn(r) {
			l.back()
			return
		}
	}
}

// skipWhitespace advances through the whitespace without emitting any tokens.
func (l *Lexer) skipWhitespace() stateFunc {
	for {
		r := l.read()
		if isWhitespace(r) {
			l.ignore()
		} else {
			l.back()
			return l.lexInit
		}
	}
}

func (l *Lexer) errorf(fstr string, args ...any) stateFunc {
	l.err = fmt.Errorf(fstr, args...)
	return l.lexEnd
}

func isWhitespace(ch rune) bool {
	return ch != eofRune && unicode.IsSpace(ch)
}
func isSymbol(ch rune) bool {
	return isLetter(ch) || isDecimal(ch) || isOneOf(ch, "._-")
}
func isLetter(ch rune) bool {
	return 'a' <= lower(ch) && lower(ch) <= 'z' || ch == '_' || ch >= utf8.RuneSelf && unicode.IsLetter(ch)
}
func lower(ch rune) rune     { return ('a' - 'A') | ch } // returns lower-case ch iff ch is ASCII letter
func isDecimal(ch rune) bool { return '0' <= ch && ch <= '9' }

func isOneOf(ch rune, xs string) bool {
	return ch != eofRune && strings.ContainsRune(xs, ch)
}

func pop[E any, S ~[]E](s S) (S, E) {
	l := len(s)
	return s[:l-1], s[l-1]
}

const eofRune = -1
