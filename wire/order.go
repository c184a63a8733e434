package wire

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is a [binary.ByteOrder] that also knows the DBus wire
// flag byte ('l' or 'B') that identifies it in a message header.
type ByteOrder interface {
	byteOrder
	DBusFlag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) DBusFlag() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

// OrderForFlag returns the [ByteOrder] matching a message header's
// endian flag byte, or false if the flag is neither 'l' nor 'B'.
func OrderForFlag(flag byte) (ByteOrder, bool) {
	switch flag {
	case 'l':
		return LittleEndian, true
	case 'B':
		return BigEndian, true
	default:
		return nil, false
	}
}

var (
	BigEndian    ByteOrder = wrapStd{binary.BigEndian}
	LittleEndian ByteOrder = wrapStd{binary.LittleEndian}
	NativeEndian ByteOrder = wrapStd{binary.NativeEndian}
)
