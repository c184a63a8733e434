package busmsg

import (
	"math"
	"strings"
)

// bodyExtend aligns and grows the body buffer by n bytes, crediting
// the length delta to every currently open ARRAY frame before
// returning the start offset of the new bytes. Every body write must
// go through this so that nested array-length bookkeeping (spec.md
// §4.3) stays correct.
func (m *Message) bodyExtend(align, n int) int {
	before := m.body.Len()
	off := m.body.Extend(align, n)
	m.growArrays(m.body.Len() - before)
	return off
}

// bodyAppendRaw appends bs verbatim to the body with no padding,
// crediting open arrays the same way as bodyExtend.
func (m *Message) bodyAppendRaw(bs []byte) int {
	before := m.body.Len()
	off := m.body.AppendRaw(bs)
	m.growArrays(m.body.Len() - before)
	return off
}

// AppendBasic appends a single basic-typed value to the message body.
//
// value must be of the Go type matching code: byte for TypeByte, bool
// for TypeBoolean, int16/uint16/int32/uint32/int64/uint64/float64 for
// the fixed-width numeric types, string for TypeString/TypeSignature,
// ObjectPath for TypeObjectPath, and FileDescriptor for TypeUnixFD.
func (m *Message) AppendBasic(code byte, value any) error {
	if m.sealed {
		return invalidStatef("cannot append to a sealed message")
	}
	if _, ok := basicTypes[code]; !ok {
		return invalidArgf("append_basic: %q is not a basic type", code)
	}
	unit := string(code)
	extendedRoot, err := m.matchOrExtend(unit)
	if err != nil {
		return err
	}
	if err := m.encodeBasic(code, value); err != nil {
		if extendedRoot {
			m.rootSig = m.rootSig[:len(m.rootSig)-len(unit)]
			m.rootIndex = len(m.rootSig)
		}
		return err
	}
	m.cursorAdvance(len(unit))
	return nil
}

// matchOrExtend checks that unit (a single complete type string) is
// legal at the current cursor position, extending the root signature
// if there is no open container and the root signature does not yet
// reach this far (spec.md §4.2: the root container's signature is the
// only one built incrementally by the writer). It reports whether it
// extended the root signature, so the caller can truncate back to the
// pre-call length on a later failure (spec.md §8 "Signature
// truncation").
func (m *Message) matchOrExtend(unit string) (extendedRoot bool, err error) {
	if f := m.containers.top(); f != nil && f.enclosing == ContainerArray {
		if f.signature != unit {
			return false, typeMismatchf("array element type is %q, not %q", f.signature, unit)
		}
		return false, nil
	}

	rem := m.cursorRemaining()
	if strings.HasPrefix(rem, unit) {
		return false, nil
	}
	if rem != "" {
		return false, typeMismatchf("signature position expects %q, got %q", rem, unit)
	}
	if m.containers.top() != nil {
		return false, invalidStatef("container's declared signature is already fully written")
	}
	m.cursorExtendRoot(unit)
	return true, nil
}

// OpenContainer begins a nested ARRAY, VARIANT, STRUCT, or DICT_ENTRY
// in the message body. contents is the contained signature: the
// single element type for ARRAY and VARIANT, or the full field
// sequence for STRUCT and DICT_ENTRY.
func (m *Message) OpenContainer(kind Container, contents string) error {
	if m.sealed {
		return invalidStatef("cannot open a container on a sealed message")
	}
	if m.containers.atDepthLimit() {
		return invalidArgf("container nesting exceeds depth limit of %d", ContainerDepthMax)
	}

	switch kind {
	case ContainerArray:
		return m.openArray(contents)
	case ContainerVariant:
		return m.openVariant(contents)
	case ContainerStruct:
		return m.openStruct(contents)
	case ContainerDictEntry:
		return m.openDictEntry(contents)
	default:
		return invalidArgf("unknown container kind %q", byte(kind))
	}
}

func (m *Message) openArray(contents string) error {
	if !isSingleCompleteType(contents) {
		return invalidArgf("array contents %q is not a single complete type", contents)
	}
	unit := "a" + contents
	if _, err := m.matchOrExtend(unit); err != nil {
		return err
	}
	sizeOff := m.bodyExtend(4, 4)
	m.body.PutUint32(sizeOff, 0)
	m.bodyExtend(alignmentFor(contents), 0) // element-alignment padding, excluded from own length
	begin := m.body.Len()
	m.cursorAdvance(len(unit))
	m.containers.push(containerFrame{
		enclosing: ContainerArray,
		signature: contents,
		arraySize: sizeOff,
		begin:     begin,
	})
	return nil
}

func (m *Message) openVariant(contents string) error {
	if !isSingleCompleteType(contents) {
		return invalidArgf("variant contents %q is not a single complete type", contents)
	}
	if contents[0] == TypeDictEntry {
		return invalidArgf("variant contents cannot be a bare dict entry")
	}
	unit := "v"
	_, err := m.matchOrExtend(unit)
	if err != nil {
		return err
	}
	if len(contents) > 255 {
		return invalidArgf("variant signature %q is too long", contents)
	}
	lenOff := m.bodyExtend(1, 1)
	m.body.PutUint8(lenOff, uint8(len(contents)))
	m.bodyAppendRaw([]byte(contents))
	m.bodyAppendRaw([]byte{0})
	begin := m.body.Len()
	m.cursorAdvance(len(unit))
	m.containers.push(containerFrame{
		enclosing: ContainerVariant,
		signature: contents,
		begin:     begin,
	})
	return nil
}

func (m *Message) openStruct(contents string) error {
	if err := validateSignature(contents); err != nil {
		return invalidArgf("struct contents: %v", err)
	}
	unit := "(" + contents + ")"
	_, err := m.matchOrExtend(unit)
	if err != nil {
		return err
	}
	m.bodyExtend(8, 0)
	begin := m.body.Len()
	m.cursorAdvance(len(unit))
	m.containers.push(containerFrame{
		enclosing: ContainerStruct,
		signature: contents,
		begin:     begin,
	})
	return nil
}

func (m *Message) openDictEntry(contents string) error {
	top := m.containers.top()
	if top == nil || top.enclosing != ContainerArray {
		return invalidStatef("dict entry is only legal directly inside an array")
	}
	unit := "{" + contents + "}"
	if n, err := elementLength(unit, true); err != nil || n != len(unit) {
		return invalidArgf("dict entry contents %q must be exactly one key type and one value type", contents)
	}
	_, err := m.matchOrExtend(unit)
	if err != nil {
		return err
	}
	m.bodyExtend(8, 0)
	begin := m.body.Len()
	m.cursorAdvance(len(unit))
	m.containers.push(containerFrame{
		enclosing: ContainerDictEntry,
		signature: contents,
		begin:     begin,
	})
	return nil
}

// CloseContainer closes the most recently opened container. For a
// non-ARRAY container, the container's declared signature must be
// fully written first.
func (m *Message) CloseContainer() error {
	if m.sealed {
		return invalidStatef("cannot close a container on a sealed message")
	}
	top := m.containers.top()
	if top == nil {
		return invalidStatef("no container is open")
	}
	if top.enclosing != ContainerArray && top.index != len(top.signature) {
		return invalidStatef("container signature %q is not fully written", top.signature)
	}
	m.containers.pop()
	return nil
}

// Append walks typeString, appending each arg in turn. For 'a' it
// consumes one arg as the element count followed by that many
// elements of the array's contents type; for '(' and '{' it opens the
// matching container, recurses on the element signature, and closes
// it; for 'v' it consumes one arg as the contents signature string
// followed by one value of that signature.
func (m *Message) Append(typeString string, args ...any) error {
	_, err := m.appendVariadic(typeString, args, false)
	return err
}

// appendVariadic splits typeString into complete-type units and
// appends each in turn. inArray is true only when typeString is
// itself the contents of a single array element (so that a bare
// DICT_ENTRY unit, legal only there, is accepted).
func (m *Message) appendVariadic(typeString string, args []any, inArray bool) ([]any, error) {
	rest := typeString
	for rest != "" {
		n, err := elementLength(rest, inArray)
		if err != nil {
			return args, invalidArgf("append: %v", err)
		}
		unit := rest[:n]
		rest = rest[n:]
		args, err = m.appendOne(unit, args)
		if err != nil {
			return args, err
		}
	}
	return args, nil
}

func (m *Message) appendOne(unit string, args []any) ([]any, error) {
	if len(unit) == 1 {
		if _, ok := basicTypes[unit[0]]; ok {
			if len(args) == 0 {
				return args, invalidArgf("append: missing argument for type %q", unit)
			}
			if err := m.AppendBasic(unit[0], args[0]); err != nil {
				return args, err
			}
			return args[1:], nil
		}
	}
	switch unit[0] {
	case TypeArray:
		contents := unit[1:]
		if len(args) == 0 {
			return args, invalidArgf("append: missing element count for array %q", unit)
		}
		count, ok := args[0].(int)
		if !ok {
			return args, invalidArgf("append: array element count must be an int")
		}
		args = args[1:]
		if err := m.OpenContainer(ContainerArray, contents); err != nil {
			return args, err
		}
		for i := 0; i < count; i++ {
			var err error
			args, err = m.appendVariadic(contents, args, true)
			if err != nil {
				return args, err
			}
		}
		if err := m.CloseContainer(); err != nil {
			return args, err
		}
		return args, nil
	case TypeVariant:
		if len(args) == 0 {
			return args, invalidArgf("append: missing contents signature for variant")
		}
		contents, ok := args[0].(string)
		if !ok {
			return args, invalidArgf("append: variant contents must be a signature string")
		}
		args = args[1:]
		if err := m.OpenContainer(ContainerVariant, contents); err != nil {
			return args, err
		}
		var err error
		args, err = m.appendVariadic(contents, args, false)
		if err != nil {
			return args, err
		}
		return args, m.CloseContainer()
	case TypeStruct:
		contents := unit[1 : len(unit)-1]
		if err := m.OpenContainer(ContainerStruct, contents); err != nil {
			return args, err
		}
		var err error
		args, err = m.appendVariadic(contents, args, false)
		if err != nil {
			return args, err
		}
		return args, m.CloseContainer()
	case TypeDictEntry:
		contents := unit[1 : len(unit)-1]
		if err := m.OpenContainer(ContainerDictEntry, contents); err != nil {
			return args, err
		}
		var err error
		args, err = m.appendVariadic(contents, args, false)
		if err != nil {
			return args, err
		}
		return args, m.CloseContainer()
	default:
		return args, invalidArgf("append: unknown type unit %q", unit)
	}
}

// encodeBasic writes value, of DBus type code, to the body at the
// current cursor position, whose type the caller's matchOrExtend has
// already checked. Each case aligns the body itself via bodyExtend.
func (m *Message) encodeBasic(code byte, value any) error {
	switch code {
	case TypeByte:
		v, ok := value.(byte)
		if !ok {
			return invalidArgf("append_basic: expected byte, got %T", value)
		}
		off := m.bodyExtend(1, 1)
		m.body.PutUint8(off, v)
	case TypeBoolean:
		v, ok := value.(bool)
		if !ok {
			return invalidArgf("append_basic: expected bool, got %T", value)
		}
		var u uint32
		if v {
			u = 1
		}
		off := m.bodyExtend(4, 4)
		m.body.PutUint32(off, u)
	case TypeInt16:
		v, ok := value.(int16)
		if !ok {
			return invalidArgf("append_basic: expected int16, got %T", value)
		}
		off := m.bodyExtend(2, 2)
		m.body.PutUint16(off, uint16(v))
	case TypeUint16:
		v, ok := value.(uint16)
		if !ok {
			return invalidArgf("append_basic: expected uint16, got %T", value)
		}
		off := m.bodyExtend(2, 2)
		m.body.PutUint16(off, v)
	case TypeInt32:
		v, ok := value.(int32)
		if !ok {
			return invalidArgf("append_basic: expected int32, got %T", value)
		}
		off := m.bodyExtend(4, 4)
		m.body.PutUint32(off, uint32(v))
	case TypeUint32:
		v, ok := value.(uint32)
		if !ok {
			return invalidArgf("append_basic: expected uint32, got %T", value)
		}
		off := m.bodyExtend(4, 4)
		m.body.PutUint32(off, v)
	case TypeInt64:
		v, ok := value.(int64)
		if !ok {
			return invalidArgf("append_basic: expected int64, got %T", value)
		}
		off := m.bodyExtend(8, 8)
		m.body.PutUint64(off, uint64(v))
	case TypeUint64:
		v, ok := value.(uint64)
		if !ok {
			return invalidArgf("append_basic: expected uint64, got %T", value)
		}
		off := m.bodyExtend(8, 8)
		m.body.PutUint64(off, v)
	case TypeDouble:
		v, ok := value.(float64)
		if !ok {
			return invalidArgf("append_basic: expected float64, got %T", value)
		}
		off := m.bodyExtend(8, 8)
		m.body.PutUint64(off, math.Float64bits(v))
	case TypeUnixFD:
		fd, ok := value.(FileDescriptor)
		if !ok {
			return invalidArgf("append_basic: expected FileDescriptor, got %T", value)
		}
		idx := uint32(len(m.fds))
		m.fds = append(m.fds, fd)
		off := m.bodyExtend(4, 4)
		m.body.PutUint32(off, idx)
	case TypeString:
		return m.encodeString(value, false)
	case TypeObjectPath:
		return m.encodeString(value, true)
	case TypeSignature:
		return m.encodeSignatureValue(value)
	default:
		return invalidArgf("append_basic: %q is not a basic type", code)
	}
	return nil
}

func (m *Message) encodeString(value any, isPath bool) error {
	var s string
	switch v := value.(type) {
	case string:
		if isPath {
			return invalidArgf("append_basic: expected ObjectPath, got string")
		}
		s = v
	case ObjectPath:
		if !isPath {
			return invalidArgf("append_basic: expected string, got ObjectPath")
		}
		s = string(v)
	default:
		return invalidArgf("append_basic: expected string, got %T", value)
	}
	if !utf8NoNUL(s) {
		return malformedf("string contains invalid UTF-8 or an embedded NUL")
	}
	if isPath && !ObjectPathIsValid(s) {
		return invalidArgf("invalid object path %q", s)
	}
	if len(s) > math.MaxUint32 {
		return outOfMemoryf("string of %d bytes exceeds the wire format's 32-bit length field", len(s))
	}
	off := m.bodyExtend(4, 4)
	m.body.PutUint32(off, uint32(len(s)))
	m.bodyAppendRaw([]byte(s))
	m.bodyAppendRaw([]byte{0})
	return nil
}

func (m *Message) encodeSignatureValue(value any) error {
	s, ok := value.(string)
	if !ok {
		return invalidArgf("append_basic: expected string, got %T", value)
	}
	if len(s) > 255 {
		return invalidArgf("signature %q longer than 255 bytes", s)
	}
	if err := validateSignature(s); err != nil {
		return invalidArgf("%v", err)
	}
	off := m.bodyExtend(1, 1)
	m.body.PutUint8(off, uint8(len(s)))
	m.bodyAppendRaw([]byte(s))
	m.bodyAppendRaw([]byte{0})
	return nil
}
