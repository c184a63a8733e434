package busmsg

import (
	"fmt"

	"github.com/halfwit/busmsg/wire"
)

// FromBuffer parses buf as a complete DBus message: the 16-byte fixed
// header, the header-fields array, and the body. creds, if non-nil,
// is attached to the returned message as the sender credentials a
// transport observed (spec.md §4.5/§9); FromBuffer never inspects the
// transport itself.
func FromBuffer(buf []byte, creds *Credentials) (*Message, error) {
	if len(buf) < headerFixedSize {
		return nil, malformedf("buffer of %d bytes is too short for a message header", len(buf))
	}
	order, ok := wire.OrderForFlag(buf[0])
	if !ok {
		return nil, malformedf("unknown byte order flag %q", buf[0])
	}
	cur := wire.NewCursor(order, buf)
	if _, err := cur.Read(1); err != nil {
		return nil, malformedf("reading byte order flag: %v", err)
	}
	typByte, err := cur.Uint8()
	if err != nil {
		return nil, malformedf("reading message type: %v", err)
	}
	if !validMessageType(typByte) {
		return nil, malformedf("invalid message type %d", typByte)
	}
	flags, err := cur.Uint8()
	if err != nil {
		return nil, malformedf("reading header flags: %v", err)
	}
	version, err := cur.Uint8()
	if err != nil {
		return nil, malformedf("reading protocol version: %v", err)
	}
	if version != protocolVersion {
		return nil, malformedf("unsupported protocol version %d", version)
	}
	bodyLen, err := cur.Uint32()
	if err != nil {
		return nil, malformedf("reading body length: %v", err)
	}
	serial, err := cur.Uint32()
	if err != nil {
		return nil, malformedf("reading serial: %v", err)
	}
	fieldsLen, err := cur.Uint32()
	if err != nil {
		return nil, malformedf("reading header fields length: %v", err)
	}
	if fieldsLen > ArrayMaxSize {
		return nil, malformedf("header fields array of %d bytes exceeds maximum of %d", fieldsLen, ArrayMaxSize)
	}

	fieldsStart := cur.Pos
	if fieldsStart+int(fieldsLen) > len(buf) {
		return nil, malformedf("header fields array runs past end of buffer")
	}
	fieldsBytes := buf[fieldsStart : fieldsStart+int(fieldsLen)]
	cur.Seek(fieldsStart + int(fieldsLen))
	if err := cur.Pad(8); err != nil {
		return nil, malformedf("header padding: %v", err)
	}
	bodyStart := cur.Pos
	if bodyLen > ArrayMaxSize {
		return nil, malformedf("body length %d exceeds maximum of %d", bodyLen, ArrayMaxSize)
	}
	if bodyStart+int(bodyLen) > len(buf) {
		return nil, malformedf("body runs past end of buffer")
	}
	if total := bodyStart + int(bodyLen); total != len(buf) {
		return nil, malformedf("buffer length %d does not match header+fields+body length %d", len(buf), total)
	}
	bodyBytes := buf[bodyStart : bodyStart+int(bodyLen)]

	m := &Message{
		order:    order,
		typ:      MessageType(typByte),
		flags:    flags,
		serial:   serial,
		creds:    creds,
		refcount: 1,
	}
	if err := m.parseFields(fieldsBytes); err != nil {
		return nil, err
	}
	m.body = wire.Buffer{Order: order, Data: append([]byte(nil), bodyBytes...)}

	if err := m.valid(); err != nil {
		return nil, err
	}
	if err := m.bodySignatureConsistent(); err != nil {
		return nil, err
	}
	m.sealed = true
	if m.typ == MethodError {
		m.errInfo.Message = readErrorMessageBestEffort(order, bodyBytes, m.rootSig)
	}
	return m, nil
}

// readErrorMessageBestEffort reads the first STRING argument of a
// method_error body, per spec.md §4.5 and §9(a): the C implementation
// this is ported from silently ignores any failure to read it, so a
// malformed or absent body string must not fail the overall parse.
func readErrorMessageBestEffort(order wire.ByteOrder, body []byte, rootSig string) string {
	if rootSig == "" || rootSig[0] != TypeString {
		return ""
	}
	cur := wire.NewCursor(order, body)
	n, err := cur.Uint32()
	if err != nil {
		return ""
	}
	bs, err := cur.Read(int(n))
	if err != nil {
		return ""
	}
	if nul, err := cur.Uint8(); err != nil || nul != 0 {
		return ""
	}
	s := string(bs)
	if !utf8NoNUL(s) {
		return ""
	}
	return s
}

// parseFields walks the header-fields array, populating m's
// quick-access fields. Unknown field codes are skipped rather than
// rejected, so that a future protocol revision adding new optional
// fields does not break this parser (spec.md §9 "forward
// compatibility").
func (m *Message) parseFields(data []byte) error {
	cur := wire.NewCursor(m.order, data)
	for cur.Remaining() > 0 {
		if err := cur.Pad(8); err != nil {
			return malformedf("header field padding: %v", err)
		}
		if cur.Remaining() == 0 {
			break
		}
		code, err := cur.Uint8()
		if err != nil {
			return malformedf("reading header field code: %v", err)
		}
		sigLen, err := cur.Uint8()
		if err != nil {
			return malformedf("reading header field variant signature length: %v", err)
		}
		sigBytes, err := cur.Read(int(sigLen))
		if err != nil {
			return malformedf("reading header field variant signature: %v", err)
		}
		if nul, err := cur.Uint8(); err != nil || nul != 0 {
			return malformedf("header field variant signature is not NUL-terminated")
		}
		sig := string(sigBytes)
		if !isSingleCompleteType(sig) {
			return malformedf("header field %d variant signature %q is not a single complete type", code, sig)
		}

		if !knownHeaderFieldCodes.Has(code) {
			if err := skipValue(cur, sig); err != nil {
				return malformedf("skipping unknown header field %d: %v", code, err)
			}
			continue
		}

		switch code {
		case fieldPath:
			if sig != "o" {
				return malformedf("header field PATH has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading PATH field: %v", err)
			}
			if !ObjectPathIsValid(s) {
				return malformedf("invalid object path %q", s)
			}
			m.path, m.hasPath = ObjectPath(s), true
		case fieldInterface:
			if sig != "s" {
				return malformedf("header field INTERFACE has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading INTERFACE field: %v", err)
			}
			if !InterfaceNameIsValid(s) {
				return malformedf("invalid interface name %q", s)
			}
			m.iface, m.hasIface = s, true
		case fieldMember:
			if sig != "s" {
				return malformedf("header field MEMBER has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading MEMBER field: %v", err)
			}
			if !MemberNameIsValid(s) {
				return malformedf("invalid member name %q", s)
			}
			m.member, m.hasMember = s, true
		case fieldErrorName:
			if sig != "s" {
				return malformedf("header field ERROR_NAME has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading ERROR_NAME field: %v", err)
			}
			if !ErrorNameIsValid(s) {
				return malformedf("invalid error name %q", s)
			}
			m.errInfo.Name, m.hasErrName = s, true
		case fieldReplySerial:
			if sig != "u" {
				return malformedf("header field REPLY_SERIAL has wrong variant signature %q", sig)
			}
			v, err := cur.Uint32()
			if err != nil {
				return malformedf("reading REPLY_SERIAL field: %v", err)
			}
			m.replySerial, m.hasReplySerial = v, true
		case fieldDestination:
			if sig != "s" {
				return malformedf("header field DESTINATION has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading DESTINATION field: %v", err)
			}
			if !BusNameIsValid(s) {
				return malformedf("invalid destination bus name %q", s)
			}
			m.destination, m.hasDestination = s, true
		case fieldSender:
			if sig != "s" {
				return malformedf("header field SENDER has wrong variant signature %q", sig)
			}
			s, err := readHeaderString(cur)
			if err != nil {
				return malformedf("reading SENDER field: %v", err)
			}
			if !BusNameIsValid(s) {
				return malformedf("invalid sender bus name %q", s)
			}
			m.sender, m.hasSender = s, true
		case fieldSignature:
			if sig != "g" {
				return malformedf("header field SIGNATURE has wrong variant signature %q", sig)
			}
			slen, err := cur.Uint8()
			if err != nil {
				return malformedf("reading SIGNATURE field length: %v", err)
			}
			sbs, err := cur.Read(int(slen))
			if err != nil {
				return malformedf("reading SIGNATURE field: %v", err)
			}
			if nul, err := cur.Uint8(); err != nil || nul != 0 {
				return malformedf("SIGNATURE field is not NUL-terminated")
			}
			rsig := string(sbs)
			if err := validateSignature(rsig); err != nil {
				return malformedf("invalid body signature %q: %v", rsig, err)
			}
			m.rootSig = rsig
		case fieldUnixFDs:
			if sig != "u" {
				return malformedf("header field UNIX_FDS has wrong variant signature %q", sig)
			}
			if _, err := cur.Uint32(); err != nil {
				return malformedf("reading UNIX_FDS field: %v", err)
			}
		}
	}
	return nil
}

func readHeaderString(cur *wire.Cursor) (string, error) {
	n, err := cur.Uint32()
	if err != nil {
		return "", err
	}
	bs, err := cur.Read(int(n))
	if err != nil {
		return "", err
	}
	nul, err := cur.Uint8()
	if err != nil {
		return "", err
	}
	if nul != 0 {
		return "", fmt.Errorf("string is not NUL-terminated")
	}
	s := string(bs)
	if !utf8NoNUL(s) {
		return "", fmt.Errorf("string contains invalid UTF-8 or an embedded NUL")
	}
	return s, nil
}

// skipValue discards a value of the given (possibly multi-type)
// signature from a raw cursor, with no Message or container-stack
// context. It exists for discarding unrecognized header fields and
// variant payloads while parsing, where the message is not yet sealed
// and has no read cursor or container stack, both of which
// [Message.Skip] relies on.
func skipValue(cur *wire.Cursor, sig string) error {
	rest := sig
	for rest != "" {
		n, err := elementLength(rest, false)
		if err != nil {
			return err
		}
		unit := rest[:n]
		rest = rest[n:]
		if err := skipOneRaw(cur, unit); err != nil {
			return err
		}
	}
	return nil
}

func skipOneRaw(cur *wire.Cursor, unit string) error {
	code := unit[0]
	if info, ok := basicTypes[code]; ok {
		switch code {
		case TypeString, TypeObjectPath:
			n, err := cur.Uint32()
			if err != nil {
				return err
			}
			_, err = cur.Read(int(n) + 1)
			return err
		case TypeSignature:
			n, err := cur.Uint8()
			if err != nil {
				return err
			}
			_, err = cur.Read(int(n) + 1)
			return err
		default:
			if err := cur.Pad(info.align); err != nil {
				return err
			}
			_, err := cur.Read(info.size)
			return err
		}
	}
	switch code {
	case TypeVariant:
		sl, err := cur.Uint8()
		if err != nil {
			return err
		}
		sb, err := cur.Read(int(sl) + 1)
		if err != nil {
			return err
		}
		return skipValue(cur, string(sb[:len(sb)-1]))
	case TypeArray:
		elem := unit[1:]
		n, err := cur.Uint32()
		if err != nil {
			return err
		}
		if err := cur.Pad(alignmentFor(elem)); err != nil {
			return err
		}
		_, err = cur.Read(int(n))
		return err
	case TypeStruct, TypeDictEntry:
		inner := unit[1 : len(unit)-1]
		if err := cur.Pad(8); err != nil {
			return err
		}
		return skipValue(cur, inner)
	default:
		return fmt.Errorf("wire: unknown type code %q", code)
	}
}
