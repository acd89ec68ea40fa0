package pipast

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/constraints"
)

// Expr is an expression.
// The set of Exprs is closed, they are defined in this package.
type Expr interface {
	isExpr()
	String() string
}

// IntExpr is an integer literal with a declared width in bits.
type IntExpr struct {
	Value uint64
	Width int
}

func (IntExpr) isExpr() {}

func (e IntExpr) String() string {
	if e.Width == 64 {
		return strconv.FormatUint(e.Value, 10)
	}
	return fmt.Sprintf("%#x:%d", e.Value, e.Width)
}

// Lit returns an IntExpr holding x, as wide as a register.
func Lit[T constraints.Integer](x T) IntExpr {
	return IntExpr{Value: uint64(x), Width: 64}
}

// IntN returns an IntExpr of width w holding the low w bits of x.
func IntN[T constraints.Integer](w int, x T) IntExpr {
	v := uint64(x)
	if w < 64 {
		v &= 1<<uint(w) - 1
	}
	return IntExpr{Value: v, Width: w}
}

// RangeExpr matches keys in the closed interval [Lo, Hi].
type RangeExpr struct {
	Lo, Hi uint64
}

func (RangeExpr) isExpr() {}

func (e RangeExpr) String() string {
	return fmt.Sprintf("%#x..%#x", e.Lo, e.Hi)
}

func (e RangeExpr) Matches(key uint64) bool {
	return e.Lo <= key && key <= e.Hi
}

// WildExpr matches keys equal to Value in every bit not set in Mask.
type WildExpr struct {
	Value uint64
	// Mask holds the don't care bits.
	Mask uint64
}

func (WildExpr) isExpr() {}

func (e WildExpr) String() string {
	return fmt.Sprintf("%#x/%#x", e.Value, e.Mask)
}

func (e WildExpr) Matches(key uint64) bool {
	return key&^e.Mask == e.Value&^e.Mask
}

// MissExpr matches any key.
type MissExpr struct{}

func (MissExpr) isExpr() {}

func (MissExpr) String() string { return "miss" }

// FieldExpr locates a range of bits in one of the address spaces.
type FieldExpr struct {
	Space Space
	Pos   Expr
	Len   Expr
}

func (FieldExpr) isExpr() {}

func (e FieldExpr) String() string {
	return fmt.Sprintf("%v[%v+%v]", e.Space, e.Pos, e.Len)
}

// Field returns a FieldExpr with literal position and length.
func Field(space Space, pos, n int) FieldExpr {
	return FieldExpr{Space: space, Pos: Lit(pos), Len: Lit(n)}
}

// PortExpr is either a port number or a reserved port.
type PortExpr struct {
	Reserved ReservedPort
	// Num is the port number when Reserved is PortNumbered.
	Num Expr
}

func (PortExpr) isExpr() {}

func (e PortExpr) String() string {
	if e.Reserved == PortNumbered {
		return fmt.Sprint(e.Num)
	}
	return e.Reserved.String()
}

// Port returns a PortExpr for a numbered port.
func Port(n uint32) PortExpr {
	return PortExpr{Num: IntN(32, n)}
}

// RefExpr refers to a declaration by name.
// It is replaced by Resolve.
type RefExpr struct {
	Name string
}

func (RefExpr) isExpr() {}

func (e RefExpr) String() string {
	return "&" + e.Name
}

// TableRef is a resolved reference to a table.
// It is the position of the table in Program.Tables.
type TableRef struct {
	Index int
}

func (TableRef) isExpr() {}

func (e TableRef) String() string {
	return "table#" + strconv.Itoa(e.Index)
}

// Space is an address space which a FieldExpr can point into.
type Space uint8

const (
	// SpacePacket is addressed from the start of the packet.
	SpacePacket Space = iota
	// SpaceHeader is addressed from the decode cursor.
	SpaceHeader
	SpaceKey
	SpaceMeta
	SpaceInPort
	SpacePhysPort
)

var spaceNames = [...]string{
	SpacePacket:   "packet",
	SpaceHeader:   "header",
	SpaceKey:      "key",
	SpaceMeta:     "meta",
	SpaceInPort:   "in_port",
	SpacePhysPort: "phys_port",
}

func (s Space) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("Space(%d)", uint8(s))
}

// IsRegister returns true for the register backed spaces.
func (s Space) IsRegister() bool {
	return s >= SpaceKey && s <= SpacePhysPort
}

func ParseSpace(x string) (Space, error) {
	for i, name := range spaceNames {
		if name == x {
			return Space(i), nil
		}
	}
	return 0, fmt.Errorf("unknown address space %q", x)
}

// ReservedPort identifies a port with a special meaning.
type ReservedPort uint8

const (
	PortNumbered ReservedPort = iota
	PortInPort
	PortController
	PortAll
	PortFlood
	PortLocal
)

var reservedPorts = [...]struct {
	name string
	num  uint32
}{
	PortNumbered:   {"", 0},
	PortInPort:     {"in_port", 0xfffffff8},
	PortFlood:      {"flood", 0xfffffffb},
	PortAll:        {"all", 0xfffffffc},
	PortController: {"controller", 0xfffffffd},
	PortLocal:      {"local", 0xfffffffe},
}

func (p ReservedPort) String() string {
	if int(p) < len(reservedPorts) && p != PortNumbered {
		return reservedPorts[p].name
	}
	return fmt.Sprintf("ReservedPort(%d)", uint8(p))
}

// Number returns the wire number of a reserved port.
func (p ReservedPort) Number() uint32 {
	if int(p) < len(reservedPorts) {
		return reservedPorts[p].num
	}
	return 0
}

func ParseReservedPort(x string) (ReservedPort, error) {
	for i, rp := range reservedPorts {
		if ReservedPort(i) != PortNumbered && rp.name == x {
			return ReservedPort(i), nil
		}
	}
	return 0, fmt.Errorf("unknown reserved port %q", x)
}
