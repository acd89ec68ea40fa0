package pipast

import (
	"errors"
	"fmt"
)

// Resolve returns a copy of p with every RefExpr goto destination replaced
// by the TableRef of the table it names.
// p is not modified.
func Resolve(p *Program) (*Program, error) {
	index := map[string]int{}
	for i, td := range p.Tables() {
		if _, exists := index[td.Name]; !exists {
			index[td.Name] = i
		}
	}
	var errs []error
	out := &Program{Entry: p.Entry, Decls: make([]Decl, len(p.Decls))}
	for i, d := range p.Decls {
		td, ok := d.(*TableDecl)
		if !ok {
			out.Decls[i] = d
			continue
		}
		r := resolver{index: index, decl: td.Name, rule: -1}
		td2 := &TableDecl{Name: td.Name, Kind: td.Kind}
		td2.Prep = r.actions(td.Prep)
		for j, rule := range td.Rules {
			r.rule = j
			td2.Rules = append(td2.Rules, Rule{
				Kind:    rule.Kind,
				Key:     rule.Key,
				Actions: r.actions(rule.Actions),
			})
		}
		errs = append(errs, r.errs...)
		out.Decls[i] = td2
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

type resolver struct {
	index map[string]int
	decl  string
	rule  int
	errs  []error
}

func (r *resolver) actions(xs []Action) []Action {
	if xs == nil {
		return nil
	}
	ys := make([]Action, len(xs))
	for i, x := range xs {
		ys[i] = r.action(x)
	}
	return ys
}

func (r *resolver) action(x Action) Action {
	switch x := x.(type) {
	case Goto:
		ref, ok := x.Dest.(RefExpr)
		if !ok {
			return x
		}
		i, ok := r.index[ref.Name]
		if !ok {
			r.errs = append(r.errs, LoadError{
				Decl:  r.decl,
				Rule:  r.rule,
				Cause: fmt.Errorf("%w: no table named %q", ErrUnresolved, ref.Name),
			})
			return x
		}
		return Goto{Dest: TableRef{Index: i}}
	case Write:
		return Write{Action: r.action(x.Action)}
	default:
		return x
	}
}
