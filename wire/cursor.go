package wire

import "fmt"

// Cursor is a random-access, alignment-aware read position into a
// byte slice. Unlike a stream reader, a Cursor can be rewound to
// re-read bytes that were already consumed, which the message reader
// needs to implement container rewind.
type Cursor struct {
	Order ByteOrder
	Data  []byte
	Pos   int
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(order ByteOrder, data []byte) *Cursor {
	return &Cursor{Order: order, Data: data}
}

// Len returns the total size of the underlying data.
func (c *Cursor) Len() int { return len(c.Data) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.Data) - c.Pos }

// Seek repositions the cursor at an absolute offset. It does not
// validate the offset; callers only ever seek to offsets they have
// previously observed (container begin markers, rewind targets).
func (c *Cursor) Seek(off int) { c.Pos = off }

// Pad advances the cursor past alignment padding, requiring every
// skipped byte to be zero. It returns an error if the padding would
// run past the end of the data, or if any padding byte is nonzero.
func (c *Cursor) Pad(align int) error {
	start := c.Pos
	end := alignUp(start, align)
	if end == start {
		return nil
	}
	if end > len(c.Data) {
		return fmt.Errorf("wire: alignment padding runs past end of buffer")
	}
	for _, bb := range c.Data[start:end] {
		if bb != 0 {
			return fmt.Errorf("wire: nonzero alignment padding byte")
		}
	}
	c.Pos = end
	return nil
}

// Read consumes and returns n raw bytes, with no padding or framing.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 || c.Pos+n > len(c.Data) {
		return nil, fmt.Errorf("wire: read of %d bytes runs past end of buffer", n)
	}
	bs := c.Data[c.Pos : c.Pos+n]
	c.Pos += n
	return bs, nil
}

// Uint8 reads a uint8.
func (c *Cursor) Uint8() (uint8, error) {
	bs, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a 2-byte-aligned uint16.
func (c *Cursor) Uint16() (uint16, error) {
	if err := c.Pad(2); err != nil {
		return 0, err
	}
	bs, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return c.Order.Uint16(bs), nil
}

// Uint32 reads a 4-byte-aligned uint32.
func (c *Cursor) Uint32() (uint32, error) {
	if err := c.Pad(4); err != nil {
		return 0, err
	}
	bs, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return c.Order.Uint32(bs), nil
}

// Uint64 reads an 8-byte-aligned uint64.
func (c *Cursor) Uint64() (uint64, error) {
	if err := c.Pad(8); err != nil {
		return 0, err
	}
	bs, err := c.Read(8)
	if err != nil {
		return 0, err
	}
	return c.Order.Uint64(bs), nil
}

// PeekUint8 returns the byte at the cursor without advancing it.
func (c *Cursor) PeekUint8() (uint8, error) {
	if c.Pos >= len(c.Data) {
		return 0, fmt.Errorf("wire: peek runs past end of buffer")
	}
	return c.Data[c.Pos], nil
}
