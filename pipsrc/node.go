package pipsrc

import (
	"fmt"
	"math/big"
	"strings"
)

// Node is a node in the syntax tree.
type Node interface {
	isNode()
}

type SExpr []Node

func (SExpr) isNode() {}

func (e SExpr) String() string {
	var parts []string
	for i := range e {
		parts = append(parts, fmt.Sprint(e[i]))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Head returns the symbol at the start of e, or "".
func (e SExpr) Head() Symbol {
	if len(e) == 0 {
		return ""
	}
	sym, _ := e[0].(Symbol)
	return sym
}

type Int struct {
	bi *big.Int
	// hex is set if the integer is printed in base 16.
	hex bool
}

func NewBigInt(x *big.Int) Int {
	x2 := new(big.Int)
	x2.Set(x)
	return Int{bi: x2}
}

func NewUint64(x uint64) Int {
	bi := new(big.Int)
	bi.SetUint64(x)
	return Int{bi: bi}
}

// NewHex returns an Int which is printed in base 16.
func NewHex(x uint64) Int {
	i := NewUint64(x)
	i.hex = true
	return i
}

func (Int) isNode() {}

func (i Int) BigInt() *big.Int {
	return i.bi
}

// Uint64 returns the value of i if it fits in 64 bits.
func (i Int) Uint64() (uint64, bool) {
	if !i.bi.IsUint64() {
		return 0, false
	}
	return i.bi.Uint64(), true
}

func (i Int) String() string {
	if i.hex {
		return "0x" + i.bi.Text(16)
	}
	return i.bi.String()
}

type Symbol string

func (Symbol) isNode() {}

type Comment string

func (Comment) isNode() {}

func (c Comment) String() string {
	return fmt.Sprintf(";;%s\n", string(c))
}
