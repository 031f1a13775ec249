package emulator

import (
	"sync"
)

const pageSize = 0x10000

/**
 * Sparse memory covering the 32 bit chip address space.
 * Pages are allocated on first write, unwritten memory reads as zero.
 *
 */
type Memory struct {
	pages map[uint32][]byte
	lock  sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		pages: make(map[uint32][]byte),
	}
}

func (m *Memory) ReadAt(buffer []byte, addr uint32) int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	n := 0
	for n < len(buffer) {
		a := addr + uint32(n)
		off := a % pageSize
		chunk := min(len(buffer)-n, int(pageSize-off))
		page, ok := m.pages[a-off]
		if ok {
			copy(buffer[n:n+chunk], page[off:])
		} else {
			clear(buffer[n : n+chunk])
		}
		n += chunk
	}
	return n
}

func (m *Memory) WriteAt(buffer []byte, addr uint32) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for n < len(buffer) {
		a := addr + uint32(n)
		off := a % pageSize
		chunk := min(len(buffer)-n, int(pageSize-off))
		page, ok := m.pages[a-off]
		if !ok {
			page = make([]byte, pageSize)
			m.pages[a-off] = page
		}
		copy(page[off:], buffer[n:n+chunk])
		n += chunk
	}
	return n
}

func (m *Memory) Pages() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.pages)
}
