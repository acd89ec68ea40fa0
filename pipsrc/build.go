package pipsrc

import (
	"fmt"
	"strings"

	"go.brendoncarroll.net/exp/slices2"

	"pipdataplane.org/pip/pipast"
)

// Parse reads a program from src, then resolves and validates it.
func Parse(src string) (*pipast.Program, error) {
	nodes, err := ReadNodes(src)
	if err != nil {
		return nil, err
	}
	prog, err := Build(nodes)
	if err != nil {
		return nil, err
	}
	return pipast.Load(prog)
}

// ReadNodes parses src into Nodes, without comments.
func ReadNodes(src string) ([]Node, error) {
	p := NewParser(strings.NewReader(src))
	_, nodes, err := ReadAll(p)
	if err != nil {
		return nil, err
	}
	return filterComments(nodes), nil
}

func filterComments(xs []Node) []Node {
	xs = slices2.Filter(xs, func(x Node) bool {
		_, isComment := x.(Comment)
		return !isComment
	})
	for i, x := range xs {
		if e, ok := x.(SExpr); ok {
			xs[i] = SExpr(filterComments(e))
		}
	}
	return xs
}

// Build converts top level Nodes into an unresolved program.
// The input is either a single (program ...) expression or a list of declarations.
func Build(nodes []Node) (*pipast.Program, error) {
	prog := &pipast.Program{}
	if len(nodes) == 1 {
		if e, ok := nodes[0].(SExpr); ok && e.Head() == "program" {
			nodes = e[1:]
			if len(nodes) > 0 {
				if e, ok := nodes[0].(SExpr); ok && e.Head() == "entry" {
					if len(e) != 2 {
						return nil, fmt.Errorf("entry takes a table name: %v", e)
					}
					name, err := symbol(e[1])
					if err != nil {
						return nil, err
					}
					prog.Entry = name
					nodes = nodes[1:]
				}
			}
		}
	}
	for _, n := range nodes {
		d, err := buildDecl(n)
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, d)
	}
	return prog, nil
}

func buildDecl(n Node) (pipast.Decl, error) {
	e, ok := n.(SExpr)
	if !ok {
		return nil, fmt.Errorf("expected declaration, found %v", n)
	}
	switch e.Head() {
	case "table":
		return buildTable(e)
	case "meter":
		if len(e) != 2 {
			return nil, fmt.Errorf("meter takes a name: %v", e)
		}
		name, err := symbol(e[1])
		if err != nil {
			return nil, err
		}
		return &pipast.MeterDecl{Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown declaration %v", e)
	}
}

func buildTable(e SExpr) (*pipast.TableDecl, error) {
	if len(e) < 3 {
		return nil, fmt.Errorf("table needs a name and a kind: %v", e)
	}
	name, err := symbol(e[1])
	if err != nil {
		return nil, err
	}
	kindSym, err := symbol(e[2])
	if err != nil {
		return nil, err
	}
	kind, err := pipast.ParseMatchKind(kindSym)
	if err != nil {
		return nil, err
	}
	td := &pipast.TableDecl{Name: name, Kind: kind}
	rest := e[3:]
	if len(rest) > 0 {
		if prep, ok := rest[0].(SExpr); ok && prep.Head() == "prep" {
			if td.Prep, err = buildActions(prep[1:]); err != nil {
				return nil, fmt.Errorf("table %s: %w", name, err)
			}
			rest = rest[1:]
		}
	}
	for i, n := range rest {
		r, err := buildRule(kind, n)
		if err != nil {
			return nil, fmt.Errorf("table %s rule %d: %w", name, i, err)
		}
		td.Rules = append(td.Rules, r)
	}
	return td, nil
}

func buildRule(kind pipast.MatchKind, n Node) (pipast.Rule, error) {
	e, ok := n.(SExpr)
	if !ok || e.Head() != "rule" || len(e) < 2 {
		return pipast.Rule{}, fmt.Errorf("expected (rule KEY action...), found %v", n)
	}
	key, err := buildKey(e[1])
	if err != nil {
		return pipast.Rule{}, err
	}
	actions, err := buildActions(e[2:])
	if err != nil {
		return pipast.Rule{}, err
	}
	return pipast.Rule{Kind: kind, Key: key, Actions: actions}, nil
}

func buildKey(n Node) (pipast.Expr, error) {
	switch n := n.(type) {
	case Int:
		x, err := uint64From(n)
		if err != nil {
			return nil, err
		}
		return pipast.Lit(x), nil
	case Symbol:
		if n == "miss" {
			return pipast.MissExpr{}, nil
		}
	case SExpr:
		switch n.Head() {
		case "int":
			return buildIntLit(n)
		case "range":
			xs, err := uints(n, 2)
			if err != nil {
				return nil, err
			}
			return pipast.RangeExpr{Lo: xs[0], Hi: xs[1]}, nil
		case "wild":
			xs, err := uints(n, 2)
			if err != nil {
				return nil, err
			}
			return pipast.WildExpr{Value: xs[0], Mask: xs[1]}, nil
		}
	}
	return nil, fmt.Errorf("expected key, found %v", n)
}

func buildActions(ns []Node) ([]pipast.Action, error) {
	var ret []pipast.Action
	for _, n := range ns {
		a, err := buildAction(n)
		if err != nil {
			return nil, err
		}
		ret = append(ret, a)
	}
	return ret, nil
}

func buildAction(n Node) (pipast.Action, error) {
	switch n := n.(type) {
	case Symbol:
		switch n {
		case "clear":
			return pipast.Clear{}, nil
		case "drop":
			return pipast.Drop{}, nil
		case "match":
			return pipast.Match{}, nil
		}
	case SExpr:
		switch n.Head() {
		case "advance":
			xs, err := uints(n, 1)
			if err != nil {
				return nil, err
			}
			return pipast.Advance{Amount: pipast.Lit(xs[0])}, nil
		case "copy":
			if len(n) != 4 {
				return nil, fmt.Errorf("copy takes a source, a destination and a width: %v", n)
			}
			src, err := buildLoc(n[1])
			if err != nil {
				return nil, err
			}
			dst, err := buildLoc(n[2])
			if err != nil {
				return nil, err
			}
			w, err := uintNode(n[3])
			if err != nil {
				return nil, err
			}
			return pipast.Copy{Src: src, Dst: dst, Width: pipast.Lit(w)}, nil
		case "set":
			if len(n) != 3 {
				return nil, fmt.Errorf("set takes a field and a value: %v", n)
			}
			field, err := buildLoc(n[1])
			if err != nil {
				return nil, err
			}
			val, err := buildValue(field, n[2])
			if err != nil {
				return nil, err
			}
			return pipast.Set{Field: field, Value: val}, nil
		case "write":
			if len(n) != 2 {
				return nil, fmt.Errorf("write takes one action: %v", n)
			}
			a, err := buildAction(n[1])
			if err != nil {
				return nil, err
			}
			return pipast.Write{Action: a}, nil
		case "goto":
			if len(n) != 2 {
				return nil, fmt.Errorf("goto takes a table name: %v", n)
			}
			name, err := symbol(n[1])
			if err != nil {
				return nil, err
			}
			return pipast.Goto{Dest: pipast.RefExpr{Name: name}}, nil
		case "output":
			if len(n) != 2 {
				return nil, fmt.Errorf("output takes a port: %v", n)
			}
			port, err := buildPort(n[1])
			if err != nil {
				return nil, err
			}
			return pipast.Output{Port: port}, nil
		}
	}
	return nil, fmt.Errorf("unknown action %v", n)
}

func buildLoc(n Node) (pipast.FieldExpr, error) {
	switch n := n.(type) {
	case Symbol:
		if f, ok := NamedField(string(n)); ok {
			return f, nil
		}
		return pipast.FieldExpr{}, fmt.Errorf("unknown field %q", n)
	case SExpr:
		space, err := pipast.ParseSpace(string(n.Head()))
		if err != nil {
			return pipast.FieldExpr{}, err
		}
		xs, err := uints(n, 2)
		if err != nil {
			return pipast.FieldExpr{}, err
		}
		return pipast.FieldExpr{Space: space, Pos: pipast.Lit(xs[0]), Len: pipast.Lit(xs[1])}, nil
	}
	return pipast.FieldExpr{}, fmt.Errorf("expected location, found %v", n)
}

// buildValue reads the value of a set. A bare integer takes the width of the field.
func buildValue(field pipast.FieldExpr, n Node) (pipast.Expr, error) {
	switch n := n.(type) {
	case Int:
		x, err := uint64From(n)
		if err != nil {
			return nil, err
		}
		w, ok := field.Len.(pipast.IntExpr)
		if !ok || w.Value == 0 || w.Value > 64 {
			return nil, fmt.Errorf("value %v needs a width, use (int W V)", n)
		}
		return pipast.IntN(int(w.Value), x), nil
	case SExpr:
		if n.Head() == "int" {
			return buildIntLit(n)
		}
	}
	return nil, fmt.Errorf("expected value, found %v", n)
}

func buildIntLit(e SExpr) (pipast.IntExpr, error) {
	xs, err := uints(e, 2)
	if err != nil {
		return pipast.IntExpr{}, err
	}
	if xs[0] > 64 {
		return pipast.IntExpr{}, fmt.Errorf("integer width %d is more than 64", xs[0])
	}
	if xs[0] < 64 && xs[1]>>xs[0] != 0 {
		return pipast.IntExpr{}, fmt.Errorf("%d does not fit in %d bits", xs[1], xs[0])
	}
	return pipast.IntExpr{Width: int(xs[0]), Value: xs[1]}, nil
}

func buildPort(n Node) (pipast.PortExpr, error) {
	switch n := n.(type) {
	case Int:
		x, err := uint64From(n)
		if err != nil {
			return pipast.PortExpr{}, err
		}
		if x > 0xffff_ffff {
			return pipast.PortExpr{}, fmt.Errorf("port %d does not fit in 32 bits", x)
		}
		return pipast.Port(uint32(x)), nil
	case Symbol:
		rp, err := pipast.ParseReservedPort(string(n))
		if err != nil {
			return pipast.PortExpr{}, err
		}
		return pipast.PortExpr{Reserved: rp}, nil
	}
	return pipast.PortExpr{}, fmt.Errorf("expected port, found %v", n)
}

// uints reads the n integer arguments of e.
func uints(e SExpr, n int) ([]uint64, error) {
	if len(e) != n+1 {
		return nil, fmt.Errorf("%v takes %d arguments", e.Head(), n)
	}
	ret := make([]uint64, n)
	for i := range ret {
		x, err := uintNode(e[i+1])
		if err != nil {
			return nil, fmt.Errorf("%v: %w", e.Head(), err)
		}
		ret[i] = x
	}
	return ret, nil
}

func uintNode(n Node) (uint64, error) {
	x, ok := n.(Int)
	if !ok {
		return 0, fmt.Errorf("expected integer, found %v", n)
	}
	return uint64From(x)
}

func uint64From(x Int) (uint64, error) {
	v, ok := x.Uint64()
	if !ok {
		return 0, fmt.Errorf("%v does not fit in 64 bits", x)
	}
	return v, nil
}

func symbol(n Node) (string, error) {
	sym, ok := n.(Symbol)
	if !ok {
		return "", fmt.Errorf("expected name, found %v", n)
	}
	return string(sym), nil
}
