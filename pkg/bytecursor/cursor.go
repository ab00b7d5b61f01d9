// Package bytecursor reads little-endian values from an in-memory buffer.
//
// The cursor is built for tagged block formats whose declared block sizes are
// not always trustworthy: callers peek at a block's 16-bit tag and 32-bit
// size before consuming them, and compare the cursor position against the
// declared boundary afterwards.
//
// Reads past the end of the buffer never panic. They return zero values,
// move the cursor to the end and record [ErrShortBuffer], which stays set and
// is reported by [Cursor.Err].
package bytecursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer is recorded when a read runs past the end of the buffer.
var ErrShortBuffer = errors.New("read past end of buffer")

// ErrUnexpectedTag is wrapped by [TagError].
var ErrUnexpectedTag = errors.New("unexpected block tag")

// TagError reports a fatal tag assertion failure.
type TagError struct {
	Pos  int
	Want Tag
	Got  Tag
}

func (e *TagError) Error() string {
	return fmt.Sprintf("at byte %d: expected %s block, found %s", e.Pos, e.Want, e.Got)
}

func (e *TagError) Unwrap() error { return ErrUnexpectedTag }

// Cursor is a read position over a byte slice.
type Cursor struct {
	data []byte
	pos  int
	err  error
}

// New returns a cursor over data starting at pos.
func New(data []byte, pos int) *Cursor {
	c := &Cursor{data: data}
	c.Seek(pos)
	return c
}

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the length of the underlying buffer.
func (c *Cursor) Len() int { return len(c.data) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Err returns the first error recorded by a read, if any.
func (c *Cursor) Err() error { return c.err }

// Seek moves the cursor to pos, clamped to [0, Len()].
func (c *Cursor) Seek(pos int) {
	switch {
	case pos < 0:
		pos = 0
	case pos > len(c.data):
		pos = len(c.data)
	}
	c.pos = pos
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) {
	if !c.need(n) {
		return
	}
	c.pos += n
}

func (c *Cursor) need(n int) bool {
	if n < 0 || c.pos+n > len(c.data) {
		if c.err == nil {
			c.err = fmt.Errorf("at byte %d, need %d bytes: %w", c.pos, n, ErrShortBuffer)
		}
		c.pos = len(c.data)
		return false
	}
	return true
}

// =============================================================================
// Peeks
// =============================================================================

// PeekU16 returns the uint16 at Pos()+off without moving the cursor.
// It returns 0 when the value lies outside the buffer.
func (c *Cursor) PeekU16(off int) uint16 {
	p := c.pos + off
	if p < 0 || p+2 > len(c.data) {
		return 0
	}
	return binary.LittleEndian.Uint16(c.data[p:])
}

// PeekU32 returns the uint32 at Pos()+off without moving the cursor.
// It returns 0 when the value lies outside the buffer.
func (c *Cursor) PeekU32(off int) uint32 {
	p := c.pos + off
	if p < 0 || p+4 > len(c.data) {
		return 0
	}
	return binary.LittleEndian.Uint32(c.data[p:])
}

// PeekTag returns the block tag at the current position.
func (c *Cursor) PeekTag() Tag { return Tag(c.PeekU16(0)) }

// PeekSize returns the declared size of the block at the current position.
func (c *Cursor) PeekSize() int { return int(c.PeekU32(2)) }

// ValidTagAt reports whether a registered tag starts at absolute position pos.
func (c *Cursor) ValidTagAt(pos int) bool {
	if pos < 0 || pos+2 > len(c.data) {
		return false
	}
	return Tag(binary.LittleEndian.Uint16(c.data[pos:])).Known()
}

// =============================================================================
// Reads
// =============================================================================

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.data[c.pos]
	c.pos++
	return v
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (c *Cursor) ReadF32() float32 {
	return math.Float32frombits(c.ReadU32())
}

// ReadBytes returns the next n bytes. The slice aliases the buffer.
func (c *Cursor) ReadBytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

// AssertType reports whether the tag at the current position is want.
// On mismatch it returns a [*TagError] when fatal is set.
func (c *Cursor) AssertType(want Tag, fatal bool) (bool, error) {
	got := c.PeekTag()
	if got == want && c.Remaining() >= 2 {
		return true, nil
	}
	if fatal {
		return false, &TagError{Pos: c.pos, Want: want, Got: got}
	}
	return false, nil
}

// Is is the non-fatal form of AssertType.
func (c *Cursor) Is(want Tag) bool {
	ok, _ := c.AssertType(want, false)
	return ok
}
