//go:build linux

package gpiomem

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mappedRegisters is a register block mapped from a device node. Every access
// is a single 32-bit atomic load or store, which the compiler may neither
// cache nor reorder against other accesses.
type mappedRegisters struct {
	mem []byte
}

// OpenDevice maps the first page of the GPIO device at path.
func OpenDevice(path string) (*RegisterFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), 0, BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return New(&mappedRegisters{mem: mem}), nil
}

func (m *mappedRegisters) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

func (m *mappedRegisters) Len() int {
	return len(m.mem)
}

func (m *mappedRegisters) Load32(off int) uint32 {
	return le32(atomic.LoadUint32(m.word(off)))
}

func (m *mappedRegisters) Store32(off int, v uint32) {
	atomic.StoreUint32(m.word(off), le32(v))
}

func (m *mappedRegisters) Close() error {
	mem := m.mem
	m.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
