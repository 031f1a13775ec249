package chip

import (
	"errors"
	"io"
)

// CopyChunk is the largest single memory transfer used by ReadTo and WriteFrom.
const CopyChunk = 16 * 1024

// ReadTo copies size bytes of chip memory starting at addr to w. progress, if
// set, is called with the byte count of every completed chunk.
func (c *Chip) ReadTo(w io.Writer, addr uint32, size int, progress func(n int)) error {
	if size <= 0 {
		return nil
	}
	buff, err := c.dev.RawReadAlloc(min(size, CopyChunk))
	if err != nil {
		return err
	}
	defer buff.Free()

	for done := 0; done < size; {
		n := min(size-done, CopyChunk)
		err = buff.SetLen(n)
		if err != nil {
			return err
		}
		err = c.dev.MemRead(buff, addr+uint32(done))
		if err != nil {
			return err
		}
		_, err = w.Write(buff.Bytes())
		if err != nil {
			return err
		}
		done += n
		if progress != nil {
			progress(n)
		}
	}
	return nil
}

// WriteFrom copies r into chip memory starting at addr until r is exhausted and
// returns the number of bytes written.
func (c *Chip) WriteFrom(r io.Reader, addr uint32, progress func(n int)) (int, error) {
	buff, err := c.dev.RawWriteAlloc(CopyChunk)
	if err != nil {
		return 0, err
	}
	defer buff.Free()

	done := 0
	for {
		err = buff.SetLen(CopyChunk)
		if err != nil {
			return done, err
		}
		n, rerr := io.ReadFull(r, buff.Bytes())
		if n > 0 {
			err = buff.SetLen(n)
			if err != nil {
				return done, err
			}
			err = c.dev.MemWrite(buff, addr+uint32(done))
			if err != nil {
				return done, err
			}
			done += n
			if progress != nil {
				progress(n)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			return done, nil
		}
		if rerr != nil {
			return done, rerr
		}
	}
}
