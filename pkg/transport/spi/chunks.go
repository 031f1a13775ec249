package spi

import "github.com/loopholelabs/wlanctl/pkg/sdio"

// Chunk is a piece of a memory transfer that fits a single CMD53.
type Chunk struct {
	Addr   uint32
	Offset int
	Size   int
	Blocks int // zero for a byte mode run
}

func (c Chunk) BlockMode() bool {
	return c.Blocks > 0
}

// ChunkIter splits a transfer at every address window boundary, then into as
// many whole blocks as fit, then a byte mode remainder.
type ChunkIter struct {
	addr      uint32
	offset    int
	remaining int
}

func Chunks(addr uint32, size int) *ChunkIter {
	return &ChunkIter{
		addr:      addr,
		remaining: size,
	}
}

func (ci *ChunkIter) Next() (Chunk, bool) {
	if ci.remaining <= 0 {
		return Chunk{}, false
	}

	windowLeft := sdio.WindowSize - int(ci.addr&sdio.WindowMask)
	span := min(ci.remaining, windowLeft)

	c := Chunk{
		Addr:   ci.addr,
		Offset: ci.offset,
	}
	if span >= sdio.BlockSize {
		c.Blocks = min(span/sdio.BlockSize, sdio.MaxBlocks)
		c.Size = c.Blocks * sdio.BlockSize
	} else {
		c.Size = span
	}

	ci.addr += uint32(c.Size)
	ci.offset += c.Size
	ci.remaining -= c.Size
	return c, true
}

// All drains the iterator.
func (ci *ChunkIter) All() []Chunk {
	var all []Chunk
	for {
		c, ok := ci.Next()
		if !ok {
			return all
		}
		all = append(all, c)
	}
}
