package busmsg

import "github.com/creachadair/mds/mapset"

// Header field codes, as carried by the BYTE at the front of each
// STRUCT in the fields array (spec.md §4.5/§6).
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldUnixFDs     = 9
)

// knownHeaderFieldCodes is the set of field codes parseFields knows
// how to decode into a quick-access Message field; anything else is
// skipped rather than rejected (spec.md §4.5: unknown header fields
// are ignored, not an error).
var knownHeaderFieldCodes = mapset.New(
	byte(fieldPath), byte(fieldInterface), byte(fieldMember), byte(fieldErrorName),
	byte(fieldReplySerial), byte(fieldDestination), byte(fieldSender), byte(fieldSignature),
	byte(fieldUnixFDs),
)

// validMessageTypes enumerates the wire-valid values of the message
// type byte (spec.md §4.3).
var validMessageTypes = mapset.New(
	byte(MethodCall), byte(MethodReturn), byte(MethodError), byte(Signal),
)

// valid reports whether m's header satisfies the per-type
// requirements of spec.md §3 invariant 9. It is checked both when
// sealing a message for send and after parsing one off the wire.
func (m *Message) valid() error {
	if m.serial == 0 {
		return malformedf("message has zero serial")
	}
	switch m.typ {
	case MethodCall:
		if !m.hasPath {
			return malformedf("method_call missing required PATH header field")
		}
		if !m.hasMember {
			return malformedf("method_call missing required MEMBER header field")
		}
	case MethodReturn:
		if !m.hasReplySerial {
			return malformedf("method_return missing required REPLY_SERIAL header field")
		}
	case MethodError:
		if !m.hasReplySerial {
			return malformedf("method_error missing required REPLY_SERIAL header field")
		}
		if !m.hasErrName {
			return malformedf("method_error missing required ERROR_NAME header field")
		}
	case Signal:
		if !m.hasPath {
			return malformedf("signal missing required PATH header field")
		}
		if !m.hasIface {
			return malformedf("signal missing required INTERFACE header field")
		}
		if !m.hasMember {
			return malformedf("signal missing required MEMBER header field")
		}
	default:
		return malformedf("invalid message type %d", m.typ)
	}
	return nil
}

// bodySignatureConsistent checks spec.md §3 invariant 10: a
// zero-length body implies an empty root signature and vice versa.
func (m *Message) bodySignatureConsistent() error {
	if (m.body.Len() == 0) != (m.rootSig == "") {
		return malformedf("body length %d inconsistent with root signature %q", m.body.Len(), m.rootSig)
	}
	return nil
}

func validMessageType(t byte) bool {
	return validMessageTypes.Has(t)
}
