package pipsrc

import (
	"slices"

	"golang.org/x/exp/maps"

	"pipdataplane.org/pip/pipast"
)

// fieldDef is the location of a well known header field, in bits from the start of the packet.
// Offsets assume an untagged Ethernet frame with a 20 byte IPv4 header.
type fieldDef struct {
	pos, n int
}

var namedFields = map[string]fieldDef{
	"eth.dst":    {0, 48},
	"eth.src":    {48, 48},
	"eth.type":   {96, 16},
	"ipv4.proto": {184, 8},
	"ipv4.src":   {208, 32},
	"ipv4.dst":   {240, 32},
	"tcp.src":    {272, 16},
	"tcp.dst":    {288, 16},
}

// FieldNames returns the names which can be used in place of a packet locator, sorted.
func FieldNames() []string {
	names := maps.Keys(namedFields)
	slices.Sort(names)
	return names
}

// NamedField returns the packet locator for a well known field.
func NamedField(name string) (pipast.FieldExpr, bool) {
	def, ok := namedFields[name]
	if !ok {
		return pipast.FieldExpr{}, false
	}
	return pipast.Field(pipast.SpacePacket, def.pos, def.n), true
}

// fieldName returns the name of the well known field at x, if there is one.
func fieldName(x pipast.FieldExpr) (string, bool) {
	if x.Space != pipast.SpacePacket {
		return "", false
	}
	pos, ok1 := x.Pos.(pipast.IntExpr)
	n, ok2 := x.Len.(pipast.IntExpr)
	if !ok1 || !ok2 {
		return "", false
	}
	for _, name := range FieldNames() {
		def := namedFields[name]
		if uint64(def.pos) == pos.Value && uint64(def.n) == n.Value {
			return name, true
		}
	}
	return "", false
}
