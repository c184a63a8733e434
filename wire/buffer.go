package wire

// alignUp rounds n up to the next multiple of align. align must be a
// power of two.
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Buffer is an append-only, alignment-aware byte region. It backs the
// two independent regions (fields and body) that make up a message
// under construction.
//
// Every reference a caller keeps into a Buffer's contents (for
// example, the body offset of an open array's length prefix) must be
// a plain int offset, never a pointer into Data. Go's append may
// reallocate the backing array on growth, so a stored offset stays
// valid across growth for free, while a stored pointer would not.
type Buffer struct {
	Order ByteOrder
	Data  []byte
}

// Len returns the current size of the buffer.
func (b *Buffer) Len() int { return len(b.Data) }

// Pad grows the buffer with zero bytes until its length is a multiple
// of align. It reports how many bytes were added.
func (b *Buffer) Pad(align int) int {
	start := len(b.Data)
	end := alignUp(start, align)
	if end == start {
		return 0
	}
	b.Data = append(b.Data, make([]byte, end-start)...)
	return end - start
}

// Extend aligns the buffer to align, then grows it by n zero bytes,
// and returns the offset at which those n bytes begin. The returned
// bytes are left zeroed for the caller to fill in with Put*.
func (b *Buffer) Extend(align, n int) int {
	b.Pad(align)
	start := len(b.Data)
	b.Data = append(b.Data, make([]byte, n)...)
	return start
}

// AppendRaw appends bs verbatim, with no padding. The caller is
// responsible for having aligned the buffer already.
func (b *Buffer) AppendRaw(bs []byte) int {
	start := len(b.Data)
	b.Data = append(b.Data, bs...)
	return start
}

// PutUint8 overwrites the byte at off.
func (b *Buffer) PutUint8(off int, v uint8) { b.Data[off] = v }

// PutUint16 overwrites the 2 bytes at off.
func (b *Buffer) PutUint16(off int, v uint16) { b.Order.PutUint16(b.Data[off:], v) }

// PutUint32 overwrites the 4 bytes at off.
func (b *Buffer) PutUint32(off int, v uint32) { b.Order.PutUint32(b.Data[off:], v) }

// PutUint64 overwrites the 8 bytes at off.
func (b *Buffer) PutUint64(off int, v uint64) { b.Order.PutUint64(b.Data[off:], v) }

// AppendUint8 writes a uint8 and returns its offset.
func (b *Buffer) AppendUint8(v uint8) int {
	off := b.Extend(1, 1)
	b.PutUint8(off, v)
	return off
}

// AppendUint16 writes a 2-byte-aligned uint16 and returns its offset.
func (b *Buffer) AppendUint16(v uint16) int {
	off := b.Extend(2, 2)
	b.PutUint16(off, v)
	return off
}

// AppendUint32 writes a 4-byte-aligned uint32 and returns its offset.
func (b *Buffer) AppendUint32(v uint32) int {
	off := b.Extend(4, 4)
	b.PutUint32(off, v)
	return off
}

// AppendUint64 writes an 8-byte-aligned uint64 and returns its offset.
func (b *Buffer) AppendUint64(v uint64) int {
	off := b.Extend(8, 8)
	b.PutUint64(off, v)
	return off
}

// Truncate discards every byte from off onward, undoing any writes
// made after off.
func (b *Buffer) Truncate(off int) {
	b.Data = b.Data[:off]
}
