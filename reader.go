package busmsg

import (
	"math"

	"github.com/halfwit/busmsg/wire"
)

// ensureReadable lazily creates the read cursor the first time any
// reader method is called, over whichever body the message currently
// has: a message built locally and then sealed can be read back
// exactly as one that arrived via [FromBuffer] (spec.md §4.5's parse
// pipeline and §4.4's build pipeline converge on the same body once
// the message is sealed).
func (m *Message) ensureReadable() error {
	if !m.sealed {
		return invalidStatef("message must be sealed before its body can be read")
	}
	if m.rcursor == nil {
		m.rcursor = wire.NewCursor(m.order, m.body.Data)
		m.containers = containerStack{}
		m.rootIndex = 0
	}
	return nil
}

func (m *Message) inArrayContext() bool {
	f := m.containers.top()
	return f != nil && f.enclosing == ContainerArray
}

// PeekType reports the type code and full single-complete-type unit
// of the next value to be read at the current position, without
// consuming anything. ok is false when the current container (or, at
// the root, the message) has no more values.
func (m *Message) PeekType() (code byte, unit string, ok bool) {
	if err := m.ensureReadable(); err != nil {
		return 0, "", false
	}
	if top := m.containers.top(); top != nil && top.enclosing == ContainerArray {
		if m.rcursor.Pos >= top.begin+int(top.length) {
			return 0, "", false
		}
	}
	rem := m.cursorRemaining()
	if rem == "" {
		return 0, "", false
	}
	n, err := elementLength(rem, m.inArrayContext())
	if err != nil {
		return 0, "", false
	}
	unit = rem[:n]
	return unit[0], unit, true
}

// ReadBasic reads the next value, which must be the basic type named
// by code, and returns it as the matching Go type (see
// [Message.AppendBasic] for the type mapping; TypeUnixFD yields a
// [FileDescriptor] still owned by the message).
func (m *Message) ReadBasic(code byte) (any, error) {
	if err := m.ensureReadable(); err != nil {
		return nil, err
	}
	actual, unit, ok := m.PeekType()
	if !ok {
		return nil, invalidStatef("no more values to read at this position")
	}
	if actual != code {
		return nil, typeMismatchf("next value has type %q, not %q", actual, code)
	}
	v, err := m.decodeBasic(code)
	if err != nil {
		return nil, err
	}
	m.cursorAdvance(len(unit))
	return v, nil
}

func (m *Message) decodeBasic(code byte) (any, error) {
	switch code {
	case TypeByte:
		v, err := m.rcursor.Uint8()
		if err != nil {
			return nil, malformedf("reading byte: %v", err)
		}
		return v, nil
	case TypeBoolean:
		v, err := m.rcursor.Uint32()
		if err != nil {
			return nil, malformedf("reading bool: %v", err)
		}
		if v > 1 {
			return nil, malformedf("boolean value %d is neither 0 nor 1", v)
		}
		return v == 1, nil
	case TypeInt16:
		v, err := m.rcursor.Uint16()
		if err != nil {
			return nil, malformedf("reading int16: %v", err)
		}
		return int16(v), nil
	case TypeUint16:
		v, err := m.rcursor.Uint16()
		if err != nil {
			return nil, malformedf("reading uint16: %v", err)
		}
		return v, nil
	case TypeInt32:
		v, err := m.rcursor.Uint32()
		if err != nil {
			return nil, malformedf("reading int32: %v", err)
		}
		return int32(v), nil
	case TypeUint32:
		v, err := m.rcursor.Uint32()
		if err != nil {
			return nil, malformedf("reading uint32: %v", err)
		}
		return v, nil
	case TypeInt64:
		v, err := m.rcursor.Uint64()
		if err != nil {
			return nil, malformedf("reading int64: %v", err)
		}
		return int64(v), nil
	case TypeUint64:
		v, err := m.rcursor.Uint64()
		if err != nil {
			return nil, malformedf("reading uint64: %v", err)
		}
		return v, nil
	case TypeDouble:
		v, err := m.rcursor.Uint64()
		if err != nil {
			return nil, malformedf("reading double: %v", err)
		}
		return math.Float64frombits(v), nil
	case TypeUnixFD:
		idx, err := m.rcursor.Uint32()
		if err != nil {
			return nil, malformedf("reading unix fd index: %v", err)
		}
		if int(idx) >= len(m.fds) {
			return nil, malformedf("unix fd index %d out of range (have %d)", idx, len(m.fds))
		}
		return m.fds[idx], nil
	case TypeString:
		return m.decodeStringLike(false)
	case TypeObjectPath:
		return m.decodeStringLike(true)
	case TypeSignature:
		return m.decodeSignatureValue()
	default:
		return nil, invalidArgf("read_basic: %q is not a basic type", code)
	}
}

func (m *Message) decodeStringLike(isPath bool) (any, error) {
	n, err := m.rcursor.Uint32()
	if err != nil {
		return nil, malformedf("reading string length: %v", err)
	}
	bs, err := m.rcursor.Read(int(n))
	if err != nil {
		return nil, malformedf("reading string contents: %v", err)
	}
	nul, err := m.rcursor.Uint8()
	if err != nil || nul != 0 {
		return nil, malformedf("string is not NUL-terminated")
	}
	s := string(bs)
	if !utf8NoNUL(s) {
		return nil, malformedf("string contains invalid UTF-8 or an embedded NUL")
	}
	if isPath {
		if !ObjectPathIsValid(s) {
			return nil, malformedf("invalid object path %q", s)
		}
		return ObjectPath(s), nil
	}
	return s, nil
}

func (m *Message) decodeSignatureValue() (any, error) {
	n, err := m.rcursor.Uint8()
	if err != nil {
		return nil, malformedf("reading signature length: %v", err)
	}
	bs, err := m.rcursor.Read(int(n))
	if err != nil {
		return nil, malformedf("reading signature contents: %v", err)
	}
	nul, err := m.rcursor.Uint8()
	if err != nil || nul != 0 {
		return nil, malformedf("signature is not NUL-terminated")
	}
	s := string(bs)
	if err := validateSignature(s); err != nil {
		return nil, malformedf("%v", err)
	}
	return s, nil
}

// EnterContainer begins reading a nested ARRAY, VARIANT, STRUCT, or
// DICT_ENTRY, and returns its contents signature: the single element
// type for ARRAY, the wire-embedded signature for VARIANT, or the
// full field sequence for STRUCT and DICT_ENTRY. contents may be left
// empty to accept whatever is present (most useful for VARIANT, whose
// contents cannot be known before entering); a non-empty contents is
// validated against what is actually on the wire.
func (m *Message) EnterContainer(kind Container, contents string) (string, error) {
	if err := m.ensureReadable(); err != nil {
		return "", err
	}
	if m.containers.atDepthLimit() {
		return "", malformedf("container nesting exceeds depth limit of %d", ContainerDepthMax)
	}
	code, unit, ok := m.PeekType()
	if !ok {
		return "", invalidStatef("no more values to read at this position")
	}
	if Container(code) != kind {
		return "", typeMismatchf("next value has type %q, not a %s", code, kind)
	}

	switch kind {
	case ContainerArray:
		elem := unit[1:]
		if contents != "" && contents != elem {
			return "", typeMismatchf("array element type is %q, not %q", elem, contents)
		}
		n, err := m.rcursor.Uint32()
		if err != nil {
			return "", malformedf("reading array length: %v", err)
		}
		if n > ArrayMaxSize {
			return "", malformedf("array length %d exceeds maximum of %d", n, ArrayMaxSize)
		}
		if err := m.rcursor.Pad(alignmentFor(elem)); err != nil {
			return "", malformedf("array element padding: %v", err)
		}
		begin := m.rcursor.Pos
		if begin+int(n) > m.rcursor.Len() {
			return "", malformedf("array length %d runs past end of body", n)
		}
		m.cursorAdvance(len(unit))
		m.containers.push(containerFrame{enclosing: ContainerArray, signature: elem, length: n, begin: begin})
		return elem, nil

	case ContainerVariant:
		sigLen, err := m.rcursor.Uint8()
		if err != nil {
			return "", malformedf("reading variant signature length: %v", err)
		}
		sigBytes, err := m.rcursor.Read(int(sigLen))
		if err != nil {
			return "", malformedf("reading variant signature: %v", err)
		}
		nul, err := m.rcursor.Uint8()
		if err != nil || nul != 0 {
			return "", malformedf("variant signature is not NUL-terminated")
		}
		sig := string(sigBytes)
		if !isSingleCompleteType(sig) {
			return "", malformedf("variant signature %q is not a single complete type", sig)
		}
		if sig[0] == TypeDictEntry {
			return "", malformedf("variant signature cannot be a bare dict entry")
		}
		if contents != "" && contents != sig {
			return "", typeMismatchf("variant contents is %q, not %q", sig, contents)
		}
		begin := m.rcursor.Pos
		m.cursorAdvance(len(unit))
		m.containers.push(containerFrame{enclosing: ContainerVariant, signature: sig, begin: begin})
		return sig, nil

	case ContainerStruct:
		inner := unit[1 : len(unit)-1]
		if contents != "" && contents != inner {
			return "", typeMismatchf("struct contents is %q, not %q", inner, contents)
		}
		if err := m.rcursor.Pad(8); err != nil {
			return "", malformedf("struct padding: %v", err)
		}
		begin := m.rcursor.Pos
		m.cursorAdvance(len(unit))
		m.containers.push(containerFrame{enclosing: ContainerStruct, signature: inner, begin: begin})
		return inner, nil

	case ContainerDictEntry:
		top := m.containers.top()
		if top == nil || top.enclosing != ContainerArray {
			return "", invalidStatef("dict entry is only legal directly inside an array")
		}
		inner := unit[1 : len(unit)-1]
		if contents != "" && contents != inner {
			return "", typeMismatchf("dict entry contents is %q, not %q", inner, contents)
		}
		if err := m.rcursor.Pad(8); err != nil {
			return "", malformedf("dict entry padding: %v", err)
		}
		begin := m.rcursor.Pos
		m.cursorAdvance(len(unit))
		m.containers.push(containerFrame{enclosing: ContainerDictEntry, signature: inner, begin: begin})
		return inner, nil

	default:
		return "", invalidArgf("unknown container kind %q", byte(kind))
	}
}

// ExitContainer ends reading of the most recently entered container.
// For an ARRAY, the cursor must already sit exactly at begin+length:
// spec.md §4.3/§8's "array length consistency" property and the
// original's `sd_bus_message_exit_container` (bus-message.c, `if
// (c->begin + l != m->rindex) return -EBUSY;`) both require this to be
// validated, not silently forced. For a STRUCT, DICT_ENTRY, or
// VARIANT, every value of its declared signature must already have
// been read: exiting early is an error, not an implicit skip
// (spec.md §4.3's "writer... must confirm the frame's signature
// cursor is exhausted (for non-ARRAY) before popping" applies
// symmetrically to the reader).
func (m *Message) ExitContainer() error {
	if err := m.ensureReadable(); err != nil {
		return err
	}
	top := m.containers.top()
	if top == nil {
		return invalidStatef("no container is open")
	}
	if top.enclosing == ContainerArray {
		if want := top.begin + int(top.length); m.rcursor.Pos != want {
			return invalidStatef("array contents left %d bytes unread at exit", want-m.rcursor.Pos)
		}
	} else if top.index != len(top.signature) {
		return invalidStatef("container signature %q is not fully read", top.signature)
	}
	m.containers.pop()
	return nil
}

// skipOne discards the next single complete value at the current
// position, descending into containers as needed.
func (m *Message) skipOne() error {
	code, unit, ok := m.PeekType()
	if !ok {
		return invalidStatef("nothing to skip at this position")
	}
	if _, ok := basicTypes[code]; ok {
		_, err := m.ReadBasic(code)
		return err
	}
	switch code {
	case TypeArray:
		if _, err := m.EnterContainer(ContainerArray, unit[1:]); err != nil {
			return err
		}
		top := m.containers.top()
		if _, err := m.rcursor.Read(int(top.length)); err != nil {
			return malformedf("skipping array contents: %v", err)
		}
		return m.ExitContainer()
	case TypeVariant:
		if _, err := m.EnterContainer(ContainerVariant, ""); err != nil {
			return err
		}
		return m.skipContainerContents()
	case TypeStruct:
		if _, err := m.EnterContainer(ContainerStruct, unit[1:len(unit)-1]); err != nil {
			return err
		}
		return m.skipContainerContents()
	case TypeDictEntry:
		if _, err := m.EnterContainer(ContainerDictEntry, unit[1:len(unit)-1]); err != nil {
			return err
		}
		return m.skipContainerContents()
	default:
		return invalidArgf("skip: unknown type code %q", code)
	}
}

// skipContainerContents discards every value remaining in the
// current non-ARRAY frame so that [Message.ExitContainer] finds its
// signature cursor exhausted, the way a caller who read every value
// individually would have left it.
func (m *Message) skipContainerContents() error {
	top := m.containers.top()
	for top.index < len(top.signature) {
		if err := m.skipOne(); err != nil {
			return err
		}
		top = m.containers.top()
	}
	return m.ExitContainer()
}

// Skip discards values matching typeString at the current position,
// without requiring the caller to decode them.
func (m *Message) Skip(typeString string) error {
	if err := m.ensureReadable(); err != nil {
		return err
	}
	rest := typeString
	for rest != "" {
		n, err := elementLength(rest, m.inArrayContext())
		if err != nil {
			return invalidArgf("skip: %v", err)
		}
		unit := rest[:n]
		rest = rest[n:]
		_, peeked, ok := m.PeekType()
		if !ok || peeked != unit {
			return typeMismatchf("skip: expected %q, found %q", unit, peeked)
		}
		if err := m.skipOne(); err != nil {
			return err
		}
	}
	return nil
}

// Rewind repositions the read cursor backward. With complete set, it
// resets to the very start of the body, closing every open container.
// Otherwise it rewinds only to the start of the innermost open
// container (or, with none open, the start of the body), leaving the
// container stack otherwise unchanged. It reports whether the message
// was in a readable state to rewind.
func (m *Message) Rewind(complete bool) bool {
	if err := m.ensureReadable(); err != nil {
		return false
	}
	if complete {
		m.rcursor.Seek(0)
		m.containers = containerStack{}
		m.rootIndex = 0
		return true
	}
	top := m.containers.top()
	if top == nil {
		m.rcursor.Seek(0)
		m.rootIndex = 0
		return true
	}
	top.index = 0
	m.rcursor.Seek(top.begin)
	return true
}
