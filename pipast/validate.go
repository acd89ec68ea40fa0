package pipast

import (
	"errors"
	"fmt"
)

// Load resolves and validates p.
func Load(p *Program) (*Program, error) {
	p, err := Resolve(p)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that p can be evaluated.
// All of the problems found are returned, joined with errors.Join.
// Each problem is a LoadError.
func Validate(p *Program) error {
	var errs []error
	tables := p.Tables()
	if _, err := p.EntryRef(); err != nil {
		errs = append(errs, LoadError{Decl: "program", Rule: -1, Cause: err})
	}
	seen := map[string]struct{}{}
	for _, d := range p.Decls {
		switch d := d.(type) {
		case *MeterDecl:
			errs = append(errs, LoadError{Decl: d.Name, Rule: -1, Cause: fmt.Errorf("%w: meter", ErrUnimplemented)})
		case *TableDecl:
			if _, exists := seen[d.Name]; exists {
				errs = append(errs, LoadError{Decl: d.Name, Rule: -1, Cause: ErrDuplicateTable})
			}
			seen[d.Name] = struct{}{}
			v := validator{decl: d.Name, rule: -1, ntables: len(tables)}
			v.table(d)
			errs = append(errs, v.errs...)
		default:
			errs = append(errs, LoadError{Decl: d.DeclName(), Rule: -1, Cause: fmt.Errorf("%w: declaration %T", ErrUnimplemented, d)})
		}
	}
	return errors.Join(errs...)
}

type validator struct {
	decl    string
	rule    int
	ntables int
	errs    []error
}

func (v *validator) fail(err error) {
	v.errs = append(v.errs, LoadError{Decl: v.decl, Rule: v.rule, Cause: err})
}

func (v *validator) table(td *TableDecl) {
	if td.Kind == MatchExpr {
		v.fail(fmt.Errorf("%w: %v tables", ErrUnimplemented, td.Kind))
		return
	}
	v.actions(td.Prep)
	for i, r := range td.Rules {
		v.rule = i
		if r.Kind != td.Kind {
			v.fail(fmt.Errorf("%w: %v rule in %v table", ErrKindMismatch, r.Kind, td.Kind))
		}
		if err := checkKey(td.Kind, r.Key); err != nil {
			v.fail(err)
		}
		if _, isMiss := r.Key.(MissExpr); isMiss && i != len(td.Rules)-1 {
			v.fail(ErrMissNotLast)
		}
		v.actions(r.Actions)
	}
	v.rule = -1
}

func checkKey(kind MatchKind, key Expr) error {
	switch key := key.(type) {
	case MissExpr:
		return nil
	case IntExpr:
		if kind == MatchExact || kind == MatchWildcard {
			return nil
		}
	case RangeExpr:
		if kind == MatchRange {
			if key.Lo > key.Hi {
				return fmt.Errorf("%w: empty range %v", ErrBadOperand, key)
			}
			return nil
		}
	case WildExpr:
		switch kind {
		case MatchWildcard:
			return nil
		case MatchPrefix:
			// the don't care bits must be the low bits
			if key.Mask&(key.Mask+1) != 0 {
				return fmt.Errorf("%w: prefix mask %#x is not contiguous", ErrBadOperand, key.Mask)
			}
			return nil
		}
	case nil:
		return fmt.Errorf("%w: missing key", ErrBadOperand)
	}
	return fmt.Errorf("%w: %T key in %v table", ErrKindMismatch, key, kind)
}

func (v *validator) actions(xs []Action) {
	for i, x := range xs {
		if IsTerminator(x) && i != len(xs)-1 {
			v.fail(fmt.Errorf("%w: %v at %d of %d", ErrTerminatorPosition, x, i, len(xs)))
		}
		v.action(x)
	}
}

func (v *validator) action(x Action) {
	switch x := x.(type) {
	case Advance:
		v.literal("advance amount", x.Amount)
	case Copy:
		v.field(x.Src)
		v.field(x.Dst)
		v.literal("copy width", x.Width)
	case Set:
		v.field(x.Field)
		if lit, ok := x.Value.(IntExpr); !ok {
			v.fail(fmt.Errorf("%w: set value %v is not an integer literal", ErrBadOperand, x.Value))
		} else if lit.Width < 1 || lit.Width > 64 {
			v.fail(fmt.Errorf("%w: set value width %d", ErrBadOperand, lit.Width))
		}
		if x.Field.Space != SpacePacket && x.Field.Space != SpaceHeader {
			v.fail(fmt.Errorf("%w: set into %v", ErrBadOperand, x.Field.Space))
		}
	case Write:
		if x.Action == nil {
			v.fail(fmt.Errorf("%w: write of nothing", ErrBadOperand))
			return
		}
		v.action(x.Action)
	case Clear, Drop, Match:
	case Goto:
		switch dest := x.Dest.(type) {
		case TableRef:
			if dest.Index < 0 || dest.Index >= v.ntables {
				v.fail(fmt.Errorf("%w: %v", ErrUnresolved, dest))
			}
		case RefExpr:
			v.fail(fmt.Errorf("%w: %v", ErrUnresolved, dest))
		default:
			v.fail(fmt.Errorf("%w: goto %v", ErrBadOperand, x.Dest))
		}
	case Output:
		if x.Port.Reserved == PortNumbered {
			if lit, ok := x.Port.Num.(IntExpr); !ok || lit.Value > 0xffff_ffff {
				v.fail(fmt.Errorf("%w: output port %v", ErrBadOperand, x.Port.Num))
			}
		} else if x.Port.Reserved.Number() == 0 {
			v.fail(fmt.Errorf("%w: output port %v", ErrBadOperand, x.Port.Reserved))
		}
	case nil:
		v.fail(fmt.Errorf("%w: missing action", ErrBadOperand))
	default:
		v.fail(fmt.Errorf("%w: action %T", ErrUnimplemented, x))
	}
}

func (v *validator) field(x FieldExpr) {
	if x.Space > SpacePhysPort {
		v.fail(fmt.Errorf("%w: %v", ErrBadOperand, x.Space))
	}
	v.literal("field position", x.Pos)
	v.literal("field length", x.Len)
}

func (v *validator) literal(what string, x Expr) {
	if _, ok := x.(IntExpr); !ok {
		v.fail(fmt.Errorf("%w: %s %v is not an integer literal", ErrBadOperand, what, x))
	}
}
