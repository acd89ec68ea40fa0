// Package pip holds the definitions shared by the dataplane packages.
package pip

import (
	"lukechampine.com/blake3"

	"pipdataplane.org/pip/internal/bitbuf"
	"pipdataplane.org/pip/internal/cadata"
)

const (
	// RegisterBits is the width of the key and metadata registers.
	RegisterBits = bitbuf.RegisterBits
	// PortBits is the width of the ingress and physical port registers.
	PortBits = 32
)

// ProgramID is the content ID of a program's source text.
type ProgramID = cadata.ID

// Hash calculates the hash of x.
// If tag == nil, then the hash is unkeyed.
// If tag != nil, then the hash will be keyed with the tag.
func Hash(tag *cadata.ID, x []byte) (ret cadata.ID) {
	var key []byte
	if tag != nil {
		key = tag[:]
	}
	h := blake3.New(32, key)
	h.Write(x)
	h.Sum(ret[:0])
	return ret
}

// ProgramHash returns the ProgramID for a program's source.
func ProgramHash(src []byte) ProgramID {
	return Hash(nil, src)
}

// ParseProgramID parses the String form of a ProgramID.
func ParseProgramID(s string) (ProgramID, error) {
	return cadata.ParseID(s)
}
