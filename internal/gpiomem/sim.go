package gpiomem

import (
	"encoding/binary"
	"fmt"
)

// Access is one register access recorded by a Simulator.
type Access struct {
	Write bool
	Index uint
	Value uint32
}

func (a Access) String() string {
	op := "read"
	if a.Write {
		op = "write"
	}
	return fmt.Sprintf("{%s @ %d = %08x}", op, a.Index, a.Value)
}

// Simulator is an in-memory GPIO register block. Writes to the set and clear
// registers update the level register the way a driven output pin would, and
// read back as zero. The level register ignores writes.
//
// When Tracing is true every access is appended to Trace.
type Simulator struct {
	buf []byte

	Tracing bool
	Trace   []Access
}

// NewSimulator returns a zeroed register block of BlockSize bytes.
func NewSimulator() *Simulator {
	return &Simulator{buf: make([]byte, BlockSize)}
}

// NewSimulated returns a RegisterFile backed by a fresh Simulator.
func NewSimulated() (*RegisterFile, *Simulator) {
	s := NewSimulator()
	return New(s), s
}

func (s *Simulator) Len() int {
	return len(s.buf)
}

func (s *Simulator) Load32(off int) uint32 {
	v := binary.LittleEndian.Uint32(s.buf[off:])
	s.record(false, off, v)
	return v
}

func (s *Simulator) Store32(off int, v uint32) {
	s.record(true, off, v)

	index := uint(off / registerSize)
	switch {
	case index >= regSET && index < regSET+2:
		s.update(regLEV+index-regSET, v, 0)
	case index >= regCLR && index < regCLR+2:
		s.update(regLEV+index-regCLR, 0, v)
	case index >= regLEV && index < regLEV+2:
		// read-only
	default:
		binary.LittleEndian.PutUint32(s.buf[off:], v)
	}
}

func (s *Simulator) update(index uint, set, clear uint32) {
	off := int(index) * registerSize
	v := binary.LittleEndian.Uint32(s.buf[off:])
	binary.LittleEndian.PutUint32(s.buf[off:], (v|set)&^clear)
}

func (s *Simulator) record(write bool, off int, v uint32) {
	if s.Tracing {
		s.Trace = append(s.Trace, Access{Write: write, Index: uint(off / registerSize), Value: v})
	}
}

func (s *Simulator) Close() error {
	return nil
}

// Word returns register index without recording an access.
func (s *Simulator) Word(index uint) uint32 {
	return binary.LittleEndian.Uint32(s.buf[index*registerSize:])
}

// SetWord overwrites register index directly, bypassing set/clear emulation.
func (s *Simulator) SetWord(index uint, v uint32) {
	binary.LittleEndian.PutUint32(s.buf[index*registerSize:], v)
}

// SetLevel drives pin externally, as a signal on an input would.
func (s *Simulator) SetLevel(pin uint, level Level) {
	index, shift := bankIndex(regLEV, pin)
	if level == High {
		s.update(index, 1<<shift, 0)
	} else {
		s.update(index, 0, 1<<shift)
	}
}

// ResetTrace discards recorded accesses.
func (s *Simulator) ResetTrace() {
	s.Trace = nil
}
