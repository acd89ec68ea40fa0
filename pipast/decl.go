package pipast

import (
	"fmt"
	"strings"
)

// Program is an ordered list of declarations.
// A Program must not be modified after it is handed to an evaluator.
type Program struct {
	// Entry names the first table of the pipeline.
	// If it is empty the first table is the entry.
	Entry string
	Decls []Decl
}

// Tables returns the table declarations in order.
// A TableRef indexes into this list.
func (p *Program) Tables() []*TableDecl {
	var ret []*TableDecl
	for _, d := range p.Decls {
		if td, ok := d.(*TableDecl); ok {
			ret = append(ret, td)
		}
	}
	return ret
}

// Table returns the table with the given name or nil.
func (p *Program) Table(name string) *TableDecl {
	for _, td := range p.Tables() {
		if td.Name == name {
			return td
		}
	}
	return nil
}

// EntryRef returns a reference to the entry table.
func (p *Program) EntryRef() (TableRef, error) {
	tables := p.Tables()
	if len(tables) == 0 {
		return TableRef{}, fmt.Errorf("%w: program has no tables", ErrNoEntry)
	}
	if p.Entry == "" {
		return TableRef{Index: 0}, nil
	}
	for i, td := range tables {
		if td.Name == p.Entry {
			return TableRef{Index: i}, nil
		}
	}
	return TableRef{}, fmt.Errorf("%w: no table named %q", ErrNoEntry, p.Entry)
}

func (p *Program) String() string {
	var parts []string
	for _, d := range p.Decls {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "\n")
}

// Decl is a declaration.
type Decl interface {
	isDecl()
	DeclName() string
	String() string
}

// TableDecl is a match-action table.
type TableDecl struct {
	Name string
	Kind MatchKind
	// Prep computes the key register before matching.
	Prep  []Action
	Rules []Rule
}

func (*TableDecl) isDecl() {}

func (td *TableDecl) DeclName() string { return td.Name }

func (td *TableDecl) String() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "table %s %v prep %v", td.Name, td.Kind, td.Prep)
	for _, r := range td.Rules {
		fmt.Fprintf(sb, "\n  %v", r)
	}
	return sb.String()
}

// MeterDecl is a meter. Meters are parsed but not implemented.
type MeterDecl struct {
	Name string
}

func (*MeterDecl) isDecl() {}

func (md *MeterDecl) DeclName() string { return md.Name }

func (md *MeterDecl) String() string { return "meter " + md.Name }

// Rule is an entry in a table.
type Rule struct {
	Kind    MatchKind
	Key     Expr
	Actions []Action
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %v %v -> %v", r.Kind, r.Key, r.Actions)
}

type MatchKind uint8

const (
	MatchExact MatchKind = iota
	MatchPrefix
	MatchWildcard
	MatchRange
	MatchExpr
)

var matchKindNames = [...]string{
	MatchExact:    "exact",
	MatchPrefix:   "prefix",
	MatchWildcard: "wildcard",
	MatchRange:    "range",
	MatchExpr:     "expr",
}

func (k MatchKind) String() string {
	if int(k) < len(matchKindNames) {
		return matchKindNames[k]
	}
	return fmt.Sprintf("MatchKind(%d)", uint8(k))
}

func ParseMatchKind(x string) (MatchKind, error) {
	for i, name := range matchKindNames {
		if name == x {
			return MatchKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown match kind %q", x)
}
