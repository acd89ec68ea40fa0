package pipsrc

import (
	"fmt"
	"strings"

	"go.brendoncarroll.net/exp/slices2"

	"pipdataplane.org/pip/pipast"
)

// Format prints p in the syntax read by Parse.
func Format(p *pipast.Program) (string, error) {
	nodes, err := Unbuild(p)
	if err != nil {
		return "", err
	}
	pr := Printer{
		Indent: "  ",
		Break:  breakDecls,
	}
	sb := &strings.Builder{}
	for i, n := range nodes {
		if i > 0 {
			sb.WriteString("\n")
		}
		if err := pr.Print(sb, n); err != nil {
			return "", err
		}
	}
	sb.WriteString("\n")
	return sb.String(), nil
}

// breakDecls puts each declaration of a program and each rule of a table on its own line.
func breakDecls(e SExpr) (int, bool) {
	switch e.Head() {
	case "program":
		if len(e) > 1 {
			if entry, ok := e[1].(SExpr); ok && entry.Head() == "entry" {
				return 2, true
			}
		}
		return 1, true
	case "table":
		return 4, true
	default:
		return 0, false
	}
}

// Unbuild converts p back to Nodes.
// Gotos which have been resolved are printed with the name of their table.
func Unbuild(p *pipast.Program) ([]Node, error) {
	u := unbuilder{tables: p.Tables()}
	var decls []Node
	for _, d := range p.Decls {
		n, err := u.decl(d)
		if err != nil {
			return nil, err
		}
		decls = append(decls, n)
	}
	if p.Entry == "" {
		return decls, nil
	}
	prog := SExpr{Symbol("program"), SExpr{Symbol("entry"), Symbol(p.Entry)}}
	return []Node{append(prog, decls...)}, nil
}

type unbuilder struct {
	tables []*pipast.TableDecl
	err    error
}

func (u *unbuilder) decl(d pipast.Decl) (Node, error) {
	switch d := d.(type) {
	case *pipast.TableDecl:
		prep := append(SExpr{Symbol("prep")}, slices2.Map(d.Prep, u.action)...)
		e := SExpr{Symbol("table"), Symbol(d.Name), Symbol(d.Kind.String()), prep}
		for _, r := range d.Rules {
			rule := SExpr{Symbol("rule"), u.expr(r.Key)}
			rule = append(rule, slices2.Map(r.Actions, u.action)...)
			e = append(e, rule)
		}
		return e, u.err
	case *pipast.MeterDecl:
		return SExpr{Symbol("meter"), Symbol(d.Name)}, nil
	default:
		return nil, fmt.Errorf("cannot format %T", d)
	}
}

func (u *unbuilder) action(a pipast.Action) Node {
	switch a := a.(type) {
	case pipast.Advance:
		return SExpr{Symbol("advance"), u.expr(a.Amount)}
	case pipast.Copy:
		return SExpr{Symbol("copy"), u.expr(a.Src), u.expr(a.Dst), u.expr(a.Width)}
	case pipast.Set:
		return SExpr{Symbol("set"), u.expr(a.Field), u.intLit(a.Value)}
	case pipast.Write:
		return SExpr{Symbol("write"), u.action(a.Action)}
	case pipast.Clear:
		return Symbol("clear")
	case pipast.Drop:
		return Symbol("drop")
	case pipast.Match:
		return Symbol("match")
	case pipast.Goto:
		return SExpr{Symbol("goto"), u.tableName(a.Dest)}
	case pipast.Output:
		return SExpr{Symbol("output"), u.expr(a.Port)}
	default:
		u.fail(fmt.Errorf("cannot format action %v", a))
		return Symbol("?")
	}
}

func (u *unbuilder) expr(x pipast.Expr) Node {
	switch x := x.(type) {
	case pipast.IntExpr:
		if x.Width == 64 {
			return NewUint64(x.Value)
		}
		return u.intLit(x)
	case pipast.RangeExpr:
		return SExpr{Symbol("range"), NewUint64(x.Lo), NewUint64(x.Hi)}
	case pipast.WildExpr:
		return SExpr{Symbol("wild"), NewHex(x.Value), NewHex(x.Mask)}
	case pipast.MissExpr:
		return Symbol("miss")
	case pipast.FieldExpr:
		if name, ok := fieldName(x); ok {
			return Symbol(name)
		}
		return SExpr{Symbol(x.Space.String()), u.expr(x.Pos), u.expr(x.Len)}
	case pipast.PortExpr:
		if x.Reserved != pipast.PortNumbered {
			return Symbol(x.Reserved.String())
		}
		if lit, ok := x.Num.(pipast.IntExpr); ok {
			return NewUint64(lit.Value)
		}
	}
	u.fail(fmt.Errorf("cannot format expression %v", x))
	return Symbol("?")
}

func (u *unbuilder) intLit(x pipast.Expr) Node {
	lit, ok := x.(pipast.IntExpr)
	if !ok {
		u.fail(fmt.Errorf("cannot format %v as an integer", x))
		return Symbol("?")
	}
	return SExpr{Symbol("int"), NewUint64(uint64(lit.Width)), NewHex(lit.Value)}
}

func (u *unbuilder) tableName(x pipast.Expr) Node {
	switch x := x.(type) {
	case pipast.RefExpr:
		return Symbol(x.Name)
	case pipast.TableRef:
		if x.Index >= 0 && x.Index < len(u.tables) {
			return Symbol(u.tables[x.Index].Name)
		}
	}
	u.fail(fmt.Errorf("cannot format goto destination %v", x))
	return Symbol("?")
}

func (u *unbuilder) fail(err error) {
	if u.err == nil {
		u.err = err
	}
}
