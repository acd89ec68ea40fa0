package pipeval

import (
	"errors"
	"fmt"

	"pipdataplane.org/pip/internal/bitbuf"
	"pipdataplane.org/pip/pipast"
)

// location is a FieldExpr with its operands evaluated.
type location struct {
	space pipast.Space
	pos   int
	n     int
}

func (m *machine) locate(x pipast.FieldExpr) (location, error) {
	pos, ok := literal(x.Pos)
	if !ok {
		return location{}, fmt.Errorf("position %v is not a literal", x.Pos)
	}
	n, ok := literal(x.Len)
	if !ok {
		return location{}, fmt.Errorf("length %v is not a literal", x.Len)
	}
	if pos > maxCursor || n > maxCursor {
		return location{}, fmt.Errorf("%v is too large", x)
	}
	return location{space: x.Space, pos: int(pos), n: int(n)}, nil
}

// view returns the bits of the working buffer addressed by a buffer space.
// The header space starts at the decode cursor.
func (m *machine) view(space pipast.Space) (bitbuf.Buf, error) {
	b := bitbuf.FromBytes(m.buf)
	switch space {
	case pipast.SpacePacket:
		return b, nil
	case pipast.SpaceHeader:
		if m.cursor > b.Len() {
			return bitbuf.Buf{}, fmt.Errorf("%w: decode cursor %d is past the end of the packet (%d bits)", bitbuf.ErrOutOfRange, m.cursor, b.Len())
		}
		return b.Slice(m.cursor, b.Len()), nil
	default:
		return bitbuf.Buf{}, fmt.Errorf("%v is not a buffer", space)
	}
}

func (m *machine) register(space pipast.Space) uint64 {
	switch space {
	case pipast.SpaceKey:
		return m.key
	case pipast.SpaceMeta:
		return m.meta
	case pipast.SpaceInPort:
		return uint64(m.inPort)
	case pipast.SpacePhysPort:
		return uint64(m.physPort)
	default:
		panic(space)
	}
}

func (m *machine) copy(a pipast.Copy) {
	src, err := m.locate(a.Src)
	if err != nil {
		m.fieldErr(a, CodeBadOperand, "source: %v", err)
		return
	}
	dst, err := m.locate(a.Dst)
	if err != nil {
		m.fieldErr(a, CodeBadOperand, "destination: %v", err)
		return
	}
	switch {
	case src.space == pipast.SpaceKey:
		m.fieldErr(a, CodeKeySource, "the key register cannot be copied from")
		return
	case dst.space == pipast.SpaceInPort || dst.space == pipast.SpacePhysPort:
		m.fieldErr(a, CodeReadOnly, "%v is read only", dst.space)
		return
	case src.space > pipast.SpacePhysPort || dst.space > pipast.SpacePhysPort:
		m.fieldErr(a, CodeBadSpace, "unknown address space")
		return
	}
	w, ok := literal(a.Width)
	if !ok {
		m.fieldErr(a, CodeBadOperand, "width %v is not a literal", a.Width)
		return
	}
	if uint64(src.n) != w || uint64(dst.n) != w {
		m.fieldErr(a, CodeWidthMismatch, "source is %d bits, destination is %d bits, width is %d", src.n, dst.n, w)
		return
	}
	n := int(w)
	if (src.space.IsRegister() || dst.space.IsRegister()) && n > bitbuf.RegisterBits {
		m.fieldErr(a, CodeTooWide, "%d bits do not fit in a register", n)
		return
	}

	if !src.space.IsRegister() && !dst.space.IsRegister() {
		srcView, err := m.view(src.space)
		if err != nil {
			m.bitErr(a, err)
			return
		}
		dstView, err := m.view(dst.space)
		if err != nil {
			m.bitErr(a, err)
			return
		}
		m.bitErr(a, bitbuf.CopyBits(dstView, dst.pos, srcView, src.pos, n))
		return
	}

	var x uint64
	if src.space.IsRegister() {
		x, err = bitbuf.ReadRegister(m.register(src.space), src.pos, n)
	} else {
		var view bitbuf.Buf
		if view, err = m.view(src.space); err == nil {
			x, err = view.Uint(src.pos, n)
		}
	}
	if err != nil {
		m.bitErr(a, err)
		return
	}

	switch dst.space {
	case pipast.SpaceKey:
		m.key, err = m.storeRegister(m.key, x, dst)
	case pipast.SpaceMeta:
		m.meta, err = m.storeRegister(m.meta, x, dst)
	default:
		var view bitbuf.Buf
		if view, err = m.view(dst.space); err == nil {
			err = view.PutUint(dst.pos, n, x)
		}
	}
	m.bitErr(a, err)
}

// storeRegister returns reg with the destination field set to x.
// reg is returned unchanged on error.
func (m *machine) storeRegister(reg, x uint64, dst location) (uint64, error) {
	out, err := bitbuf.WriteRegister(reg, x, dst.pos, dst.n)
	if err != nil {
		return reg, err
	}
	return out, nil
}

// bitErr converts an error from bitbuf into a FieldError
func (m *machine) bitErr(a pipast.Action, err error) {
	switch {
	case err == nil:
	case errors.Is(err, bitbuf.ErrTooWide):
		m.fieldErr(a, CodeTooWide, "%v", err)
	case errors.Is(err, bitbuf.ErrOutOfRange):
		m.fieldErr(a, CodeOutOfBounds, "%v", err)
	default:
		m.fieldErr(a, CodeBadOperand, "%v", err)
	}
}
