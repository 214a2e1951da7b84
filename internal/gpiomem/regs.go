package gpiomem

import (
	"encoding/binary"
	"math/bits"
)

// Register word indices within the GPIO block (BCM2835 peripherals manual, ch. 6).
const (
	regFSEL   uint = 0  // 0x00, function select, 10 pins per register
	regSET    uint = 7  // 0x1c, output set
	regCLR    uint = 10 // 0x28, output clear
	regLEV    uint = 13 // 0x34, pin level
	regPUD    uint = 37 // 0x94, pull-up/down enable
	regPUDCLK uint = 38 // 0x98, pull-up/down clock
)

const (
	// BlockSize is the size of the mapped register block.
	BlockSize = 4 * 1024

	// MaxPin is the highest GPIO number on the BCM2835 family.
	MaxPin uint = 53

	bankSize     = 32
	fselPerReg   = 10
	fselWidth    = 3
	pullWidth    = 2
	registerSize = 4
)

// Registers is the backing store of a RegisterFile. Offsets are in bytes and
// always 4-byte aligned; values are little-endian 32-bit words.
type Registers interface {
	// Len returns the size of the block in bytes.
	Len() int
	Load32(off int) uint32
	Store32(off int, v uint32)
	Close() error
}

// fselIndex returns the function select register and bit shift for pin.
func fselIndex(pin uint) (index, shift uint) {
	return regFSEL + pin/fselPerReg, (pin % fselPerReg) * fselWidth
}

// bankIndex returns the register of a 32-pin bank starting at base, and the
// pin's bit within it.
func bankIndex(base, pin uint) (index, shift uint) {
	return base + pin/bankSize, pin % bankSize
}

func fieldMask(width uint) uint32 {
	return (1 << width) - 1
}

// readField extracts width bits at shift from reg.
func readField(reg uint32, shift, width uint) uint32 {
	return (reg >> shift) & fieldMask(width)
}

// writeField replaces width bits at shift in reg with v. Bits outside the
// field are preserved.
func writeField(reg uint32, shift, width uint, v uint32) uint32 {
	m := fieldMask(width) << shift
	return (reg &^ m) | ((v << shift) & m)
}

var hostLittleEndian = func() bool {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], 1)
	return b[0] == 1
}()

// le32 converts between host order and little-endian.
func le32(v uint32) uint32 {
	if hostLittleEndian {
		return v
	}
	return bits.ReverseBytes32(v)
}
