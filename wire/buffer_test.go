package wire_test

import (
	"bytes"
	"testing"

	"github.com/halfwit/busmsg/wire"
)

func TestBufferAlignment(t *testing.T) {
	b := &wire.Buffer{Order: wire.LittleEndian}
	b.AppendUint8(1)
	off := b.AppendUint32(2)
	if off != 4 {
		t.Fatalf("AppendUint32 offset = %d, want 4 (padded past the byte)", off)
	}
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	if !bytes.Equal(b.Data, want) {
		t.Fatalf("Data = % x, want % x", b.Data, want)
	}
}

func TestBufferPutOverwrites(t *testing.T) {
	b := &wire.Buffer{Order: wire.BigEndian}
	off := b.AppendUint32(0)
	b.PutUint32(off, 0xdeadbeef)
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if !bytes.Equal(b.Data, want) {
		t.Fatalf("Data = % x, want % x", b.Data, want)
	}
}

func TestBufferTruncate(t *testing.T) {
	b := &wire.Buffer{Order: wire.LittleEndian}
	b.AppendUint32(1)
	mark := b.Len()
	b.AppendUint32(2)
	b.Truncate(mark)
	if b.Len() != mark {
		t.Fatalf("Len() = %d after Truncate(%d)", b.Len(), mark)
	}
}

func TestBufferOffsetsSurviveGrowth(t *testing.T) {
	b := &wire.Buffer{Order: wire.LittleEndian}
	off := b.AppendUint32(0xaaaaaaaa)
	for i := 0; i < 1000; i++ {
		b.AppendUint8(0)
	}
	b.PutUint32(off, 0x11223344)
	got := wire.LittleEndian.Uint32(b.Data[off:])
	if got != 0x11223344 {
		t.Fatalf("offset %d reads back %#x after growth, want %#x", off, got, 0x11223344)
	}
}
