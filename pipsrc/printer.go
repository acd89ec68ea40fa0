package pipsrc

import (
	"io"
	"strings"
)

// Writer is used by the Print functions
type Writer interface {
	io.Writer
	io.StringWriter
}

// Printer writes Nodes as text.
type Printer struct {
	// Indent is written before every line after the first of an SExpr broken by Break.
	Indent string
	// Break returns true if the children of e after the first n should each start a new line.
	Break func(e SExpr) (n int, ok bool)
}

func (p Printer) PrintString(x Node) string {
	sb := strings.Builder{}
	if err := p.Print(&sb, x); err != nil {
		return err.Error()
	}
	return sb.String()
}

func (p Printer) Print(w Writer, x Node) error {
	return p.printNode(w, x, 0)
}

func (p Printer) printNode(w Writer, x Node, depth int) error {
	switch x := x.(type) {
	case SExpr:
		brk, hasBreak := 0, false
		if p.Break != nil {
			brk, hasBreak = p.Break(x)
		}
		if _, err := w.WriteString("("); err != nil {
			return err
		}
		for i := range x {
			sep := " "
			if hasBreak && i >= brk {
				sep = "\n" + strings.Repeat(p.Indent, depth+1)
			}
			if i > 0 {
				if _, err := w.WriteString(sep); err != nil {
					return err
				}
			}
			if err := p.printNode(w, x[i], depth+1); err != nil {
				return err
			}
		}
		_, err := w.WriteString(")")
		return err
	case Symbol:
		_, err := w.WriteString(string(x))
		return err
	case Int:
		_, err := w.WriteString(x.String())
		return err
	case Comment:
		_, err := w.WriteString(x.String())
		return err
	default:
		panic(x)
	}
}
