package busmsg

import (
	"math"

	"github.com/halfwit/busmsg/wire"
)

// Seal finalizes a message under construction: it assigns serial,
// builds the header-fields array from whichever quick-access fields
// were set, and marks the message as read-only. A message must have
// no open containers to be sealed (spec.md §3 invariant 4/§4.4).
func (m *Message) Seal(serial uint32) error {
	if m.sealed {
		return invalidStatef("message is already sealed")
	}
	if m.containers.depth() != 0 {
		return invalidStatef("message has %d unclosed container(s)", m.containers.depth())
	}
	if serial == 0 {
		return invalidArgf("serial must be nonzero")
	}
	if m.body.Len() > math.MaxUint32 {
		return outOfMemoryf("body of %d bytes exceeds the wire format's 32-bit size limit", m.body.Len())
	}
	m.serial = serial
	if err := m.valid(); err != nil {
		return err
	}
	if err := m.bodySignatureConsistent(); err != nil {
		return err
	}
	m.encodeFields()
	if m.fields.Len() > math.MaxUint32 {
		return outOfMemoryf("header fields array of %d bytes exceeds the wire format's 32-bit size limit", m.fields.Len())
	}
	m.sealed = true
	return nil
}

// encodeFields builds the wire representation of the header-fields
// array (an ARRAY of STRUCT{BYTE, VARIANT}) from whichever
// quick-access fields the message has set (spec.md §4.5's field-code
// table, in reverse: encode instead of parse). The buffer holds only
// the STRUCT elements themselves, starting at offset 0: the array's
// own u32 length prefix is the header's fields_size word (written by
// [Message.Blob]), not anything stored inside m.fields.
func (m *Message) encodeFields() {
	buf := &wire.Buffer{Order: m.order}

	if m.hasPath {
		appendStringField(buf, fieldPath, TypeObjectPath, string(m.path))
	}
	if m.hasIface {
		appendStringField(buf, fieldInterface, TypeString, m.iface)
	}
	if m.hasMember {
		appendStringField(buf, fieldMember, TypeString, m.member)
	}
	if m.hasErrName {
		appendStringField(buf, fieldErrorName, TypeString, m.errInfo.Name)
	}
	if m.hasReplySerial {
		appendUint32Field(buf, fieldReplySerial, m.replySerial)
	}
	if m.hasDestination {
		appendStringField(buf, fieldDestination, TypeString, m.destination)
	}
	if m.hasSender {
		appendStringField(buf, fieldSender, TypeString, m.sender)
	}
	if m.rootSig != "" {
		appendSignatureField(buf, m.rootSig)
	}
	if len(m.fds) > 0 {
		appendUint32Field(buf, fieldUnixFDs, uint32(len(m.fds)))
	}

	m.fields = *buf
}

func appendStringField(buf *wire.Buffer, code byte, sigChar byte, s string) {
	buf.Pad(8)
	buf.AppendUint8(code)
	buf.AppendUint8(1)
	buf.AppendRaw([]byte{sigChar})
	buf.AppendRaw([]byte{0})
	off := buf.Extend(4, 4)
	buf.PutUint32(off, uint32(len(s)))
	buf.AppendRaw([]byte(s))
	buf.AppendRaw([]byte{0})
}

func appendUint32Field(buf *wire.Buffer, code byte, v uint32) {
	buf.Pad(8)
	buf.AppendUint8(code)
	buf.AppendUint8(1)
	buf.AppendRaw([]byte{TypeUint32})
	buf.AppendRaw([]byte{0})
	buf.AppendUint32(v)
}

func appendSignatureField(buf *wire.Buffer, sig string) {
	buf.Pad(8)
	buf.AppendUint8(fieldSignature)
	buf.AppendUint8(1)
	buf.AppendRaw([]byte{TypeSignature})
	buf.AppendRaw([]byte{0})
	buf.AppendUint8(uint8(len(sig)))
	buf.AppendRaw([]byte(sig))
	buf.AppendRaw([]byte{0})
}

// Blob returns the flat, transport-ready encoding of a sealed
// message: the 16-byte fixed header, the header-fields array, padding
// up to an 8-byte boundary, and the body.
func (m *Message) Blob() ([]byte, error) {
	if !m.sealed {
		return nil, invalidStatef("message is not sealed")
	}
	out := make([]byte, 0, headerFixedSize+m.fields.Len()+8+m.body.Len())
	out = append(out, m.order.DBusFlag())
	out = append(out, byte(m.typ))
	out = append(out, m.flags)
	out = append(out, protocolVersion)
	out = m.order.AppendUint32(out, uint32(m.body.Len()))
	out = m.order.AppendUint32(out, m.serial)
	out = m.order.AppendUint32(out, uint32(m.fields.Len()))
	out = append(out, m.fields.Data...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	out = append(out, m.body.Data...)
	return out, nil
}
