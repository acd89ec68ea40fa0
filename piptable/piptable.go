// Package piptable builds lookup structures for the tables of a program and matches keys against them.
package piptable

import (
	"pipdataplane.org/pip/pipast"
)

// Table is a table declaration with its rule index.
// It is immutable once built, and safe for concurrent use.
type Table struct {
	decl *pipast.TableDecl
	// exact maps a literal key to the first rule carrying it.
	exact map[uint64]int
	// scan holds the positions of rules which are not in exact, in order.
	scan []int
}

// Build indexes the rules of td.
func Build(td *pipast.TableDecl) *Table {
	t := &Table{
		decl:  td,
		exact: make(map[uint64]int),
	}
	for i, r := range td.Rules {
		if lit, ok := r.Key.(pipast.IntExpr); ok {
			if _, exists := t.exact[lit.Value]; !exists {
				t.exact[lit.Value] = i
			}
			continue
		}
		t.scan = append(t.scan, i)
	}
	return t
}

// BuildAll builds a Table for each table in p, in the order of p.Tables.
// The returned slice is indexed by pipast.TableRef.
func BuildAll(p *pipast.Program) []*Table {
	tds := p.Tables()
	ret := make([]*Table, len(tds))
	for i, td := range tds {
		ret[i] = Build(td)
	}
	return ret
}

func (t *Table) Decl() *pipast.TableDecl {
	return t.decl
}

func (t *Table) Name() string {
	return t.decl.Name
}

func (t *Table) Prep() []pipast.Action {
	return t.decl.Prep
}

// Rule returns the i-th rule.
func (t *Table) Rule(i int) pipast.Rule {
	return t.decl.Rules[i]
}

// Indexed returns the number of distinct literal keys in the index.
func (t *Table) Indexed() int {
	return len(t.exact)
}

// Match returns the position of the first rule, in declaration order, which matches key.
// ok is false if no rule matches.
func (t *Table) Match(key uint64) (rule int, ok bool) {
	limit := len(t.decl.Rules)
	candidate, inIndex := t.exact[key]
	if inIndex {
		limit = candidate
	}
	for _, i := range t.scan {
		if i >= limit {
			break
		}
		if matches(t.decl.Rules[i].Key, key) {
			return i, true
		}
	}
	return candidate, inIndex
}

// Lookup returns the actions of the rule matching key.
func (t *Table) Lookup(key uint64) ([]pipast.Action, bool) {
	i, ok := t.Match(key)
	if !ok {
		return nil, false
	}
	return t.decl.Rules[i].Actions, true
}

func matches(x pipast.Expr, key uint64) bool {
	switch x := x.(type) {
	case pipast.MissExpr:
		return true
	case pipast.IntExpr:
		return x.Value == key
	case pipast.RangeExpr:
		return x.Matches(key)
	case pipast.WildExpr:
		return x.Matches(key)
	default:
		return false
	}
}
