package pipast

import "fmt"

// Action is a single step of a table's action lists.
// The set of Actions is closed, they are defined in this package.
type Action interface {
	isAction()
	String() string
}

// Advance moves the decode cursor forward by Amount bits.
type Advance struct {
	Amount Expr
}

// Copy transfers Width bits from Src to Dst.
type Copy struct {
	Src, Dst FieldExpr
	Width    Expr
}

// Set writes a literal into the packet.
type Set struct {
	Field FieldExpr
	Value Expr
}

// Write defers Action to the egress phase.
type Write struct {
	Action Action
}

// Clear discards the pending actions.
type Clear struct{}

// Drop discards the packet.
type Drop struct{}

// Match looks up the key register in the active table.
type Match struct{}

// Goto makes Dest the active table.
type Goto struct {
	Dest Expr
}

// Output records the egress port.
type Output struct {
	Port PortExpr
}

func (Advance) isAction() {}
func (Copy) isAction()    {}
func (Set) isAction()     {}
func (Write) isAction()   {}
func (Clear) isAction()   {}
func (Drop) isAction()    {}
func (Match) isAction()   {}
func (Goto) isAction()    {}
func (Output) isAction()  {}

func (a Advance) String() string { return fmt.Sprintf("advance(%v)", a.Amount) }
func (a Copy) String() string    { return fmt.Sprintf("copy(%v, %v, %v)", a.Src, a.Dst, a.Width) }
func (a Set) String() string     { return fmt.Sprintf("set(%v, %v)", a.Field, a.Value) }
func (a Write) String() string   { return fmt.Sprintf("write(%v)", a.Action) }
func (Clear) String() string     { return "clear" }
func (Drop) String() string      { return "drop" }
func (Match) String() string     { return "match" }
func (a Goto) String() string    { return fmt.Sprintf("goto(%v)", a.Dest) }
func (a Output) String() string  { return fmt.Sprintf("output(%v)", a.Port) }

// IsTerminator returns true for the actions which end a phase of execution.
func IsTerminator(a Action) bool {
	switch a.(type) {
	case Drop, Match, Goto, Output:
		return true
	default:
		return false
	}
}
