package busmsg

import "github.com/halfwit/busmsg/wire"

func newMessage(order wire.ByteOrder, typ MessageType) *Message {
	if order == nil {
		order = wire.NativeEndian
	}
	return &Message{order: order, typ: typ, body: wire.Buffer{Order: order}, refcount: 1}
}

// NewSignal creates a SIGNAL message. path, iface, and member are all
// required (spec.md §3 invariant 9).
func NewSignal(path ObjectPath, iface, member string) (*Message, error) {
	if !ObjectPathIsValid(string(path)) {
		return nil, invalidArgf("invalid object path %q", path)
	}
	if !InterfaceNameIsValid(iface) {
		return nil, invalidArgf("invalid interface name %q", iface)
	}
	if !MemberNameIsValid(member) {
		return nil, invalidArgf("invalid member name %q", member)
	}
	m := newMessage(wire.NativeEndian, Signal)
	m.path, m.hasPath = path, true
	m.iface, m.hasIface = iface, true
	m.member, m.hasMember = member, true
	return m, nil
}

// NewMethodCall creates a METHOD_CALL message. destination and iface
// may be left empty; path and member are required.
func NewMethodCall(destination string, path ObjectPath, iface, member string) (*Message, error) {
	if destination != "" && !BusNameIsValid(destination) {
		return nil, invalidArgf("invalid destination bus name %q", destination)
	}
	if !ObjectPathIsValid(string(path)) {
		return nil, invalidArgf("invalid object path %q", path)
	}
	if iface != "" && !InterfaceNameIsValid(iface) {
		return nil, invalidArgf("invalid interface name %q", iface)
	}
	if !MemberNameIsValid(member) {
		return nil, invalidArgf("invalid member name %q", member)
	}
	m := newMessage(wire.NativeEndian, MethodCall)
	m.path, m.hasPath = path, true
	m.member, m.hasMember = member, true
	if destination != "" {
		m.destination, m.hasDestination = destination, true
	}
	if iface != "" {
		m.iface, m.hasIface = iface, true
	}
	return m, nil
}

// NewMethodReturn creates a METHOD_RETURN replying to call, which
// must already be sealed (so it has a serial to reply to).
func NewMethodReturn(call *Message) (*Message, error) {
	if call.typ != MethodCall {
		return nil, invalidArgf("NewMethodReturn requires a method_call message, got %s", call.typ)
	}
	if !call.sealed {
		return nil, invalidStatef("NewMethodReturn requires a sealed method_call message")
	}
	m := newMessage(call.order, MethodReturn)
	m.replySerial, m.hasReplySerial = call.serial, true
	if dst, ok := call.Sender(); ok {
		m.destination, m.hasDestination = dst, true
	}
	m.flags |= FlagNoReplyExpected
	m.dontSend = call.NoReplyExpected()
	return m, nil
}

// NewMethodError creates a METHOD_ERROR replying to call, which must
// already be sealed. errMsg, if non-empty, becomes the error's single
// human-readable STRING body argument, matching the DBus convention
// (not a protocol requirement: spec.md §3 invariant 9 only requires
// ERROR_NAME and REPLY_SERIAL).
func NewMethodError(call *Message, errName, errMsg string) (*Message, error) {
	if call.typ != MethodCall {
		return nil, invalidArgf("NewMethodError requires a method_call message, got %s", call.typ)
	}
	if !call.sealed {
		return nil, invalidStatef("NewMethodError requires a sealed method_call message")
	}
	if !ErrorNameIsValid(errName) {
		return nil, invalidArgf("invalid error name %q", errName)
	}
	m := newMessage(call.order, MethodError)
	m.replySerial, m.hasReplySerial = call.serial, true
	m.errInfo.Name, m.hasErrName = errName, true
	if dst, ok := call.Sender(); ok {
		m.destination, m.hasDestination = dst, true
	}
	m.flags |= FlagNoReplyExpected
	m.dontSend = call.NoReplyExpected()
	if errMsg != "" {
		if err := m.AppendBasic(TypeString, errMsg); err != nil {
			return nil, err
		}
		m.errInfo.Message = errMsg
	}
	return m, nil
}
