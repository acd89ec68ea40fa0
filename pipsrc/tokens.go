package pipsrc

import "fmt"

type TokenType int

const (
	Illegal TokenType = iota
	EOF

	TokSymbol // table
	TokInt    // 0x0800
	LParen    // (
	RParen    // )
	// TokComment is a single line comment
	TokComment
)

type Token struct {
	ty   TokenType
	text string
	span Span
}

func (tok Token) Type() TokenType { return tok.ty }

func (tok Token) Text() string {
	return tok.text
}

func (tok Token) String() string {
	switch tok.ty {
	case EOF:
		return "EOF"
	}
	return fmt.Sprintf("%q", tok.text)
}

func (tok Token) Span() Span {
	return tok.span
}

func (tok Token) IsEOF() bool {
	return tok.Type() == EOF
}

// Pos is a position within the input
type Pos uint32

// Span is a region of the input
type Span struct {
	Begin Pos
	End   Pos
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Begin, s.End)
}
