// Package bitbuf provides bit addressed access to byte buffers and 64 bit registers.
//
// Bits in a byte buffer are numbered most significant bit first: bit 0 is the high bit
// of byte 0, bit 7 is its low bit and bit 8 is the high bit of byte 1.
// This is the order in which header fields appear on the wire.
//
// Bits in a register are numbered from the least significant bit.
// A register field (pos, n) holds the value (reg >> pos) & Mask(n).
package bitbuf

import (
	"errors"
	"fmt"
)

type Bit = uint8

const (
	WordBits     = 8
	RegisterBits = 64
)

var (
	ErrTooWide    = errors.New("bitbuf: field is wider than a register")
	ErrOutOfRange = errors.New("bitbuf: bit range is outside the buffer")
)

// Buf is a view of a bit range of a byte slice.
type Buf struct {
	// offset is the offset in bits from the start of d
	offset int
	// l is the length of the view in bits.  The end is offset + l
	l int
	d []byte
}

func New(l int) Buf {
	return Buf{
		l: l,
		d: make([]byte, divCeil(l, WordBits)),
	}
}

func FromBytes(d []byte) Buf {
	return Buf{d: d, l: len(d) * WordBits}
}

func (b Buf) Len() int {
	return b.l
}

func (b Buf) Bytes() []byte {
	if b.offset != 0 {
		panic("Bytes can only be called on the original buffer")
	}
	return b.d
}

// Slice returns a view of the bits [beg, end) of b.
func (b Buf) Slice(beg, end int) Buf {
	if beg < 0 || end < beg || end > b.Len() {
		panic(fmt.Sprintf("bitbuf: out of bounds slice. beg=%v end=%v len=%d", beg, end, b.Len()))
	}
	return Buf{
		offset: b.offset + beg,
		l:      end - beg,
		d:      b.d,
	}
}

func (b Buf) Get(i int) Bit {
	return getBit(b.d, b.offset+i)
}

func (b Buf) Put(i int, x Bit) {
	putBit(b.d, b.offset+i, x)
}

// Uint reads the n bit field at pos as a right aligned integer.
func (b Buf) Uint(pos, n int) (uint64, error) {
	if err := b.check(pos, n); err != nil {
		return 0, err
	}
	return Extract(b.d, b.offset+pos, n)
}

// PutUint writes the low n bits of x to the field at pos.
func (b Buf) PutUint(pos, n int, x uint64) error {
	if err := b.check(pos, n); err != nil {
		return err
	}
	return StoreRegister(b.d, x, b.offset+pos, n)
}

// CopyBits copies n bits from src at srcPos into dst at dstPos.
// The views may share storage.
func CopyBits(dst Buf, dstPos int, src Buf, srcPos, n int) error {
	if err := dst.check(dstPos, n); err != nil {
		return err
	}
	if err := src.check(srcPos, n); err != nil {
		return err
	}
	return Copy(dst.d, dst.offset+dstPos, src.d, src.offset+srcPos, n)
}

func (b Buf) check(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > b.l {
		return fmt.Errorf("%w: %d bits at %d of %d", ErrOutOfRange, n, pos, b.l)
	}
	return nil
}

// Mask returns a register with the low n bits set.
func Mask(n int) uint64 {
	if n >= RegisterBits {
		return ^uint64(0)
	}
	if n <= 0 {
		return 0
	}
	return uint64(1)<<uint(n) - 1
}

// Extract copies the n bits starting at bit pos of buf into the low bits of a register.
func Extract(buf []byte, pos, n int) (uint64, error) {
	if err := checkRegister(n); err != nil {
		return 0, err
	}
	if err := checkRange(len(buf), pos, n); err != nil {
		return 0, err
	}
	var x uint64
	for n > 0 {
		off := pos % WordBits
		avail := WordBits - off
		take := min(avail, n)
		bits := (buf[pos/WordBits] >> uint(avail-take)) & lowBits(take)
		x = x<<uint(take) | uint64(bits)
		pos += take
		n -= take
	}
	return x, nil
}

// StoreRegister writes the low n bits of reg into buf starting at bit pos.
// Bits outside of [pos, pos+n) are left unchanged.
func StoreRegister(buf []byte, reg uint64, pos, n int) error {
	if err := checkRegister(n); err != nil {
		return err
	}
	if err := checkRange(len(buf), pos, n); err != nil {
		return err
	}
	for n > 0 {
		off := pos % WordBits
		avail := WordBits - off
		take := min(avail, n)
		shift := uint(avail - take)
		m := lowBits(take) << shift
		bits := byte(reg>>uint(n-take)) & lowBits(take)
		i := pos / WordBits
		buf[i] = buf[i]&^m | bits<<shift
		pos += take
		n -= take
	}
	return nil
}

// Insert writes the first n bits of src into buf starting at bit pos.
// Bits outside of [pos, pos+n) are left unchanged.
func Insert(buf []byte, pos int, src []byte, n int) error {
	if err := checkRange(len(src), 0, n); err != nil {
		return err
	}
	if err := checkRange(len(buf), pos, n); err != nil {
		return err
	}
	for k := 0; k < n; k += RegisterBits {
		c := min(RegisterBits, n-k)
		x, err := Extract(src, k, c)
		if err != nil {
			return err
		}
		if err := StoreRegister(buf, x, pos+k, c); err != nil {
			return err
		}
	}
	return nil
}

// Copy copies n bits from src at srcPos into dst at dstPos.
// n is not limited to the width of a register, and src and dst may overlap.
func Copy(dst []byte, dstPos int, src []byte, srcPos, n int) error {
	if err := checkRange(len(src), srcPos, n); err != nil {
		return err
	}
	if err := checkRange(len(dst), dstPos, n); err != nil {
		return err
	}
	tmp := make([]byte, divCeil(n, WordBits))
	for k := 0; k < n; k += RegisterBits {
		c := min(RegisterBits, n-k)
		x, err := Extract(src, srcPos+k, c)
		if err != nil {
			return err
		}
		if err := StoreRegister(tmp, x, k, c); err != nil {
			return err
		}
	}
	return Insert(dst, dstPos, tmp, n)
}

// MergeRegisters returns dst with the bits [pos, pos+n) replaced by the same bits of src.
func MergeRegisters(src, dst uint64, pos, n int) (uint64, error) {
	if err := checkRegister(n); err != nil {
		return 0, err
	}
	if pos < 0 || pos+n > RegisterBits {
		return 0, fmt.Errorf("%w: %d bits at %d of a register", ErrOutOfRange, n, pos)
	}
	m := Mask(n) << uint(pos)
	return dst&^m | src&m, nil
}

// ReadRegister returns the register field (pos, n) right aligned.
func ReadRegister(reg uint64, pos, n int) (uint64, error) {
	if err := checkRegister(n); err != nil {
		return 0, err
	}
	if pos < 0 || pos+n > RegisterBits {
		return 0, fmt.Errorf("%w: %d bits at %d of a register", ErrOutOfRange, n, pos)
	}
	return (reg >> uint(pos)) & Mask(n), nil
}

// WriteRegister returns reg with the field (pos, n) set to the low n bits of x.
func WriteRegister(reg, x uint64, pos, n int) (uint64, error) {
	if pos < 0 || pos >= RegisterBits {
		return MergeRegisters(0, reg, pos, n)
	}
	return MergeRegisters(x<<uint(pos), reg, pos, n)
}

func checkRegister(n int) error {
	if n > RegisterBits {
		return fmt.Errorf("%w: %d bits", ErrTooWide, n)
	}
	return nil
}

func checkRange(bufLen, pos, n int) error {
	if pos < 0 || n < 0 || pos+n > bufLen*WordBits {
		return fmt.Errorf("%w: %d bits at %d of %d", ErrOutOfRange, n, pos, bufLen*WordBits)
	}
	return nil
}

func lowBits(n int) byte {
	return byte(0xff) >> uint(WordBits-n)
}

func putBit(d []byte, i int, x Bit) {
	x &= 1 // ensure only the low bit is set.
	shift := uint(WordBits - 1 - i%WordBits)
	d[i/WordBits] = d[i/WordBits]&^(1<<shift) | x<<shift
}

func getBit(d []byte, i int) Bit {
	shift := uint(WordBits - 1 - i%WordBits)
	return (d[i/WordBits] >> shift) & 1
}

func divCeil(a, b int) int {
	ret := a / b
	if a%b > 0 {
		ret++
	}
	return ret
}
