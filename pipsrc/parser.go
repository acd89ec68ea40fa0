package pipsrc

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"pipdataplane.org/pip/internal/ringbuf"
)

type NodeSpan struct {
	Bound    Span
	Children []NodeSpan
}

// Parser reads Nodes from text.
type Parser struct {
	lex   *Lexer
	inBuf ringbuf.RingBuf[Token]
}

func NewParser(r io.RuneReader) *Parser {
	return &Parser{
		lex:   NewLexer(r),
		inBuf: ringbuf.New[Token](1),
	}
}

// ParseAST returns the next Node, or nil at the end of the input.
func (p *Parser) ParseAST() (NodeSpan, Node, error) {
	tok, err := p.next()
	if err != nil {
		return NodeSpan{}, nil, err
	}
	switch tok.Type() {
	case EOF:
		return NodeSpan{}, nil, nil
	case TokInt:
		return p.parseInt(tok)
	case TokSymbol:
		return NodeSpan{Bound: tok.Span()}, Symbol(tok.Text()), nil
	case TokComment:
		return NodeSpan{Bound: tok.Span()}, Comment(tok.Text()[2:]), nil
	case LParen:
		p.back(tok)
		return p.ParseSExpr()
	default:
		return NodeSpan{}, nil, fmt.Errorf("unexpected token %v at %v", tok, tok.Span())
	}
}

func (p *Parser) ParseSExpr() (NodeSpan, Node, error) {
	tok, err := p.next()
	if err != nil {
		return NodeSpan{}, nil, err
	}
	if tok.Type() != LParen {
		return NodeSpan{}, nil, fmt.Errorf("expected ( found %v", tok)
	}
	span := NodeSpan{Bound: tok.Span()}
	exprs := SExpr{}
	for {
		tok, err := p.next()
		if err != nil {
			return NodeSpan{}, nil, err
		}
		if tok.Type() == EOF {
			return NodeSpan{}, nil, fmt.Errorf("unterminated expression starting at %v", span.Bound)
		}
		if tok.Type() == RParen {
			span.Bound.End = tok.Span().End
			break
		}
		p.back(tok)
		span2, subExpr, err := p.ParseAST()
		if err != nil {
			return NodeSpan{}, nil, err
		}
		span.Children = append(span.Children, span2)
		exprs = append(exprs, subExpr)
	}
	return span, exprs, nil
}

func (p *Parser) parseInt(tok Token) (NodeSpan, Node, error) {
	n := new(big.Int)
	if err := n.UnmarshalText([]byte(tok.Text())); err != nil {
		return NodeSpan{}, nil, fmt.Errorf("bad integer %v: %w", tok, err)
	}
	text := strings.ToLower(strings.TrimPrefix(tok.Text(), "+"))
	return NodeSpan{Bound: tok.Span()}, Int{bi: n, hex: strings.HasPrefix(text, "0x")}, nil
}

func (p *Parser) fill(n int) error {
	for p.inBuf.Len() < n {
		tok, err := p.lex.Next()
		if err != nil {
			return err
		}
		p.inBuf.PushBack(tok)
		if tok.Type() == EOF {
			break
		}
	}
	return nil
}

func (p *Parser) next() (ret Token, _ error) {
	if err := p.fill(1); err != nil {
		return Token{}, err
	}
	return p.inBuf.PopFront(), nil
}

func (p *Parser) back(tok Token) {
	p.inBuf.PushFront(tok)
}

// ReadAll parses Nodes until the end of the input.
func ReadAll(p *Parser) (rootSpan NodeSpan, ret []Node, _ error) {
	for {
		span, e, err := p.ParseAST()
		if err != nil {
			return span, nil, err
		}
		if e == nil {
			break
		}
		rootSpan.Children = append(rootSpan.Children, span)
		ret = append(ret, e)
	}
	return rootSpan, ret, nil
}
