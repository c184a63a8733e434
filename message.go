// Package busmsg builds, serializes, parses, and traverses DBus
// protocol messages.
//
// The package offers two symmetric pipelines over the same [Message]
// type. The build pipeline starts from a constructor ([NewSignal],
// [NewMethodCall], [NewMethodReturn], [NewMethodError]), appends typed
// values with [Message.AppendBasic] and nested containers with
// [Message.OpenContainer]/[Message.CloseContainer], and finishes with
// [Message.Seal], which produces a flat, transport-ready buffer via
// [Message.Blob]. The parse pipeline starts from [FromBuffer], which
// validates the header and populates the header-field quick-access
// getters, after which the body is traversed on demand with
// [Message.PeekType], [Message.ReadBasic],
// [Message.EnterContainer]/[Message.ExitContainer], [Message.Skip],
// and [Message.Rewind].
//
// A Message is not safe for concurrent use: every operation requires
// exclusive access by the calling goroutine, including the refcount
// maintained by [Message.Ref]/[Message.Unref].
package busmsg

import (
	"os"

	"github.com/halfwit/busmsg/wire"
)

// MessageType is the type of a DBus message, carried in byte 1 of the
// header.
type MessageType byte

const (
	_ MessageType = iota
	// MethodCall invokes a method on a remote object.
	MethodCall
	// MethodReturn carries the successful result of a method call.
	MethodReturn
	// MethodError carries the failed result of a method call.
	MethodError
	// Signal is a broadcast notification with no reply.
	Signal
)

func (t MessageType) String() string {
	switch t {
	case MethodCall:
		return "method_call"
	case MethodReturn:
		return "method_return"
	case MethodError:
		return "method_error"
	case Signal:
		return "signal"
	default:
		return "unknown"
	}
}

// Header flag bits (header byte 2).
const (
	FlagNoReplyExpected        byte = 1 << 0
	FlagNoAutoStart            byte = 1 << 1
	FlagAllowInteractiveAuth   byte = 1 << 2
	protocolVersion            byte = 1
	headerFixedSize                 = 16
)

// ObjectPath is a DBus object path, such as "/org/example/Object".
type ObjectPath string

// FileDescriptor is a file descriptor carried alongside a message.
// Messages own the descriptors in their fd list until [Message.TakeFDs]
// transfers ownership to the caller, or the message is dropped, at
// which point any descriptors still owned by the message are closed.
type FileDescriptor struct {
	*os.File
}

// Credentials are the sender identity attributes a transport may
// attach to a received message. Every field is optional, matching the
// optionality of SO_PEERCRED-style credentials on the underlying
// transport.
type Credentials struct {
	UID, GID *uint32
	PID, TID *uint32
	// Label is the security label (e.g. an SELinux or AppArmor
	// context) attached to the message, if the transport provided
	// one.
	Label []byte
}

// MessageError is the error name and optional human-readable message
// carried by a METHOD_ERROR message.
type MessageError struct {
	Name    string
	Message string
}

// Message is a DBus protocol message under construction or received
// from a peer. See the package doc for the build and parse pipelines.
type Message struct {
	order  wire.ByteOrder
	typ    MessageType
	flags  byte
	serial uint32

	fields wire.Buffer
	body   wire.Buffer

	sealed   bool
	dontSend bool

	path           ObjectPath
	hasPath        bool
	iface          string
	hasIface       bool
	member         string
	hasMember      bool
	destination    string
	hasDestination bool
	sender         string
	hasSender      bool
	errInfo        MessageError
	hasErrName     bool
	replySerial    uint32
	hasReplySerial bool

	rootSig   string
	rootIndex int

	fds []FileDescriptor

	creds *Credentials

	containers containerStack
	rcursor    *wire.Cursor
	peekCache  string

	refcount int32
}

// Ref increments the message's reference count and returns the
// message, for chaining.
func (m *Message) Ref() *Message {
	m.refcount++
	return m
}

// Unref decrements the message's reference count. When the count
// reaches zero, the message's buffers and any file descriptors it
// still owns are released.
func (m *Message) Unref() {
	m.refcount--
	if m.refcount > 0 {
		return
	}
	for _, fd := range m.fds {
		if fd.File != nil {
			fd.File.Close()
		}
	}
	m.fds = nil
	m.fields = wire.Buffer{}
	m.body = wire.Buffer{}
	m.containers = containerStack{}
	m.peekCache = ""
}

// Type returns the message's type.
func (m *Message) Type() MessageType { return m.typ }

// Serial returns the message's serial number. It is zero until the
// message is sealed.
func (m *Message) Serial() uint32 { return m.serial }

// NoReplyExpected reports whether the sender has indicated that it
// does not want a reply to this message.
func (m *Message) NoReplyExpected() bool { return m.flags&FlagNoReplyExpected != 0 }

// DontSend reports whether this reply was constructed in answer to a
// call that itself had [FlagNoReplyExpected] set. Transport is out of
// scope for this package, so nothing consumes this flag here, and it
// is never serialized: see spec.md §4.6/§9.
func (m *Message) DontSend() bool { return m.dontSend }

// Path returns the message's object path header field.
func (m *Message) Path() (ObjectPath, bool) { return m.path, m.hasPath }

// Interface returns the message's interface header field.
func (m *Message) Interface() (string, bool) { return m.iface, m.hasIface }

// Member returns the message's member (method or signal name) header
// field.
func (m *Message) Member() (string, bool) { return m.member, m.hasMember }

// Destination returns the message's destination bus name header
// field.
func (m *Message) Destination() (string, bool) { return m.destination, m.hasDestination }

// SetDestination sets the message's destination bus name header
// field. It may be called at most once per message, before sealing
// (matching sd_bus_message_set_destination's -EEXIST/-EPERM checks):
// most callers instead pass destination to NewMethodCall.
func (m *Message) SetDestination(destination string) error {
	if m.sealed {
		return invalidStatef("cannot set destination on a sealed message")
	}
	if m.hasDestination {
		return existsf("destination is already set to %q", m.destination)
	}
	if !BusNameIsValid(destination) {
		return invalidArgf("invalid destination bus name %q", destination)
	}
	m.destination, m.hasDestination = destination, true
	return nil
}

// Sender returns the message's sender bus name header field, normally
// populated by the message bus itself.
func (m *Message) Sender() (string, bool) { return m.sender, m.hasSender }

// ReplySerial returns the serial of the method call this message is
// replying to.
func (m *Message) ReplySerial() (uint32, bool) { return m.replySerial, m.hasReplySerial }

// Error returns the error name and message carried by a METHOD_ERROR
// message.
func (m *Message) Error() (MessageError, bool) { return m.errInfo, m.hasErrName }

// Signature returns the signature of the message body.
func (m *Message) Signature() string { return m.rootSig }

// Credentials returns the sender credentials attached to a received
// message, or nil if none were provided.
func (m *Message) Credentials() *Credentials { return m.creds }

// IsSignal reports whether m is a SIGNAL, optionally filtered by
// interface and/or member (an empty filter argument matches any
// value).
func (m *Message) IsSignal(iface, member string) bool {
	if m.typ != Signal {
		return false
	}
	if iface != "" && m.iface != iface {
		return false
	}
	if member != "" && m.member != member {
		return false
	}
	return true
}

// IsMethodCall reports whether m is a METHOD_CALL, optionally
// filtered by interface and/or member.
func (m *Message) IsMethodCall(iface, member string) bool {
	if m.typ != MethodCall {
		return false
	}
	if iface != "" && m.iface != iface {
		return false
	}
	if member != "" && m.member != member {
		return false
	}
	return true
}

// IsMethodError reports whether m is a METHOD_ERROR, optionally
// filtered by error name.
func (m *Message) IsMethodError(name string) bool {
	if m.typ != MethodError {
		return false
	}
	if name != "" && m.errInfo.Name != name {
		return false
	}
	return true
}

// TakeFDs transfers ownership of the message's file descriptors to
// the caller and clears the message's own list, so that Unref will
// not close them. Per spec.md §9, this is the only way callers should
// obtain the raw descriptors.
func (m *Message) TakeFDs() []FileDescriptor {
	fds := m.fds
	m.fds = nil
	return fds
}

// NumFDs returns the number of file descriptors currently attached to
// the message.
func (m *Message) NumFDs() int { return len(m.fds) }
