package busmsg_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	dbus "github.com/halfwit/busmsg"
	"github.com/halfwit/busmsg/wire"
)

func TestSignalRoundTrip(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "Ping")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	if err := m.Append("si", "hello", int32(42)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Seal(7); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if m2.Type() != dbus.Signal {
		t.Fatalf("Type() = %v, want Signal", m2.Type())
	}
	if !m2.IsSignal("org.example.Iface", "Ping") {
		t.Fatal("IsSignal(iface, member) = false")
	}
	if path, ok := m2.Path(); !ok || path != "/org/example/Obj" {
		t.Fatalf("Path() = %q, %v", path, ok)
	}
	if sig := m2.Signature(); sig != "si" {
		t.Fatalf("Signature() = %q, want \"si\"", sig)
	}

	v, err := m2.ReadBasic(dbus.TypeString)
	if err != nil || v != "hello" {
		t.Fatalf("ReadBasic(string) = %v, %v, want \"hello\", nil", v, err)
	}
	v, err = m2.ReadBasic(dbus.TypeInt32)
	if err != nil || v != int32(42) {
		t.Fatalf("ReadBasic(int32) = %v, %v, want 42, nil", v, err)
	}
	if _, _, ok := m2.PeekType(); ok {
		t.Fatal("PeekType() reports a value after the body is exhausted")
	}
}

func TestMethodCallWithoutInterface(t *testing.T) {
	m, err := dbus.NewMethodCall("org.example.Bus", "/org/example/Obj", "", "DoThing")
	if err != nil {
		t.Fatalf("NewMethodCall: %v", err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if m2.Type() != dbus.MethodCall {
		t.Fatalf("Type() = %v, want MethodCall", m2.Type())
	}
	if _, ok := m2.Interface(); ok {
		t.Fatal("Interface() present on a method_call that never set it")
	}
	if dest, ok := m2.Destination(); !ok || dest != "org.example.Bus" {
		t.Fatalf("Destination() = %q, %v", dest, ok)
	}
	if member, ok := m2.Member(); !ok || member != "DoThing" {
		t.Fatalf("Member() = %q, %v", member, ok)
	}
}

func TestDictInsideArrayRoundTrip(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "PropertiesChanged")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	if err := m.OpenContainer(dbus.ContainerArray, "{sv}"); err != nil {
		t.Fatalf("OpenContainer(array): %v", err)
	}
	if err := m.OpenContainer(dbus.ContainerDictEntry, "sv"); err != nil {
		t.Fatalf("OpenContainer(dict_entry): %v", err)
	}
	if err := m.AppendBasic(dbus.TypeString, "Count"); err != nil {
		t.Fatalf("AppendBasic(key): %v", err)
	}
	if err := m.OpenContainer(dbus.ContainerVariant, "i"); err != nil {
		t.Fatalf("OpenContainer(variant): %v", err)
	}
	if err := m.AppendBasic(dbus.TypeInt32, int32(5)); err != nil {
		t.Fatalf("AppendBasic(variant value): %v", err)
	}
	if err := m.CloseContainer(); err != nil { // variant
		t.Fatalf("CloseContainer(variant): %v", err)
	}
	if err := m.CloseContainer(); err != nil { // dict_entry
		t.Fatalf("CloseContainer(dict_entry): %v", err)
	}
	if err := m.CloseContainer(); err != nil { // array
		t.Fatalf("CloseContainer(array): %v", err)
	}
	if err := m.Seal(3); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if _, err := m2.EnterContainer(dbus.ContainerArray, "{sv}"); err != nil {
		t.Fatalf("EnterContainer(array): %v", err)
	}
	if _, err := m2.EnterContainer(dbus.ContainerDictEntry, "sv"); err != nil {
		t.Fatalf("EnterContainer(dict_entry): %v", err)
	}
	key, err := m2.ReadBasic(dbus.TypeString)
	if err != nil || key != "Count" {
		t.Fatalf("ReadBasic(key) = %v, %v, want \"Count\", nil", key, err)
	}
	vsig, err := m2.EnterContainer(dbus.ContainerVariant, "")
	if err != nil || vsig != "i" {
		t.Fatalf("EnterContainer(variant) = %q, %v, want \"i\", nil", vsig, err)
	}
	val, err := m2.ReadBasic(dbus.TypeInt32)
	if err != nil || val != int32(5) {
		t.Fatalf("ReadBasic(variant value) = %v, %v, want 5, nil", val, err)
	}
	if err := m2.ExitContainer(); err != nil { // variant
		t.Fatalf("ExitContainer(variant): %v", err)
	}
	if err := m2.ExitContainer(); err != nil { // dict_entry
		t.Fatalf("ExitContainer(dict_entry): %v", err)
	}
	if err := m2.ExitContainer(); err != nil { // array
		t.Fatalf("ExitContainer(array): %v", err)
	}
}

func TestErrorReplyRoundTrip(t *testing.T) {
	call, err := dbus.NewMethodCall("", "/org/example/Obj", "org.example.Iface", "Do")
	if err != nil {
		t.Fatalf("NewMethodCall: %v", err)
	}
	if err := call.Seal(5); err != nil {
		t.Fatalf("Seal(call): %v", err)
	}

	errReply, err := dbus.NewMethodError(call, "org.example.Error.Failed", "boom")
	if err != nil {
		t.Fatalf("NewMethodError: %v", err)
	}
	if err := errReply.Seal(6); err != nil {
		t.Fatalf("Seal(errReply): %v", err)
	}
	blob, err := errReply.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if m2.Type() != dbus.MethodError {
		t.Fatalf("Type() = %v, want MethodError", m2.Type())
	}
	if !m2.IsMethodError("org.example.Error.Failed") {
		t.Fatal("IsMethodError(name) = false")
	}
	info, ok := m2.Error()
	if !ok || info.Name != "org.example.Error.Failed" {
		t.Fatalf("Error() = %+v, %v", info, ok)
	}
	if rs, ok := m2.ReplySerial(); !ok || rs != 5 {
		t.Fatalf("ReplySerial() = %d, %v, want 5, true", rs, ok)
	}
	msg, err := m2.ReadBasic(dbus.TypeString)
	if err != nil || msg != "boom" {
		t.Fatalf("ReadBasic(message) = %v, %v, want \"boom\", nil", msg, err)
	}
}

func TestFromBufferRejectsMalformedHeaders(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{
			name: "unknown byte order flag",
			buf:  []byte{'z', 1, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "unsupported protocol version",
			buf:  []byte{'l', 1, 0, 9, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "invalid message type",
			buf:  []byte{'l', 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "fields length runs past end of buffer",
			buf:  []byte{'l', byte(dbus.MethodCall), 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 100, 0, 0, 0},
		},
		{
			name: "too short for a fixed header",
			buf:  []byte{'l', byte(dbus.MethodCall), 0, 1},
		},
	}
	for _, c := range cases {
		if _, err := dbus.FromBuffer(c.buf, nil); err == nil {
			t.Errorf("%s: FromBuffer succeeded, want an error", c.name)
		}
	}
}

func TestAllBasicTypesRoundTrip(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "AllTypes")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	type typedValue struct {
		code byte
		val  any
	}
	values := []typedValue{
		{dbus.TypeByte, byte(0x7f)},
		{dbus.TypeBoolean, true},
		{dbus.TypeInt16, int16(-100)},
		{dbus.TypeUint16, uint16(200)},
		{dbus.TypeInt32, int32(-100000)},
		{dbus.TypeUint32, uint32(200000)},
		{dbus.TypeInt64, int64(-5000000000)},
		{dbus.TypeUint64, uint64(5000000000)},
		{dbus.TypeDouble, 3.5},
		{dbus.TypeString, "hello"},
		{dbus.TypeObjectPath, dbus.ObjectPath("/a/b")},
		{dbus.TypeSignature, "a{sv}"},
	}
	for _, tv := range values {
		if err := m.AppendBasic(tv.code, tv.val); err != nil {
			t.Fatalf("AppendBasic(%q, %v): %v", tv.code, tv.val, err)
		}
	}
	if err := m.Seal(1); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	var want, got []any
	for _, tv := range values {
		want = append(want, tv.val)
		v, err := m2.ReadBasic(tv.code)
		if err != nil {
			t.Fatalf("ReadBasic(%q): %v", tv.code, err)
		}
		got = append(got, v)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-tripped values differ from original (-want +got):\n%s", diff)
	}
}

func TestContainerDepthGuard(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "Deep")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	totalLevels := dbus.ContainerDepthMax + 1
	i := 0
	for ; i < totalLevels; i++ {
		remaining := totalLevels - i - 1
		contents := strings.Repeat("a", remaining) + "i"
		if err = m.OpenContainer(dbus.ContainerArray, contents); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("opened %d levels of nested containers without hitting the depth limit", totalLevels)
	}
	if i != dbus.ContainerDepthMax {
		t.Fatalf("depth limit triggered opening level %d, want %d", i, dbus.ContainerDepthMax)
	}
}

// TestParseDepthGuard exercises the read side of the same depth limit
// TestContainerDepthGuard checks on the build side: EnterContainer
// must refuse to descend past ContainerDepthMax open containers even
// when it is asked to on an otherwise well-formed message.
func TestParseDepthGuard(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "Deep")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	depth := dbus.ContainerDepthMax
	for i := 0; i < depth; i++ {
		contents := strings.Repeat("a", depth-1-i) + "i"
		if err := m.OpenContainer(dbus.ContainerArray, contents); err != nil {
			t.Fatalf("OpenContainer level %d: %v", i, err)
		}
	}
	if err := m.AppendBasic(dbus.TypeInt32, int32(7)); err != nil {
		t.Fatalf("AppendBasic: %v", err)
	}
	for i := 0; i < depth; i++ {
		if err := m.CloseContainer(); err != nil {
			t.Fatalf("CloseContainer level %d: %v", i, err)
		}
	}
	if err := m.Seal(11); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	m2, err := dbus.FromBuffer(blob, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	for i := 0; i < depth; i++ {
		if _, err := m2.EnterContainer(dbus.ContainerArray, ""); err != nil {
			t.Fatalf("EnterContainer level %d: %v", i, err)
		}
	}
	if _, err := m2.EnterContainer(dbus.ContainerArray, ""); !errors.Is(err, dbus.ErrMalformedMessage) {
		t.Fatalf("EnterContainer at the depth limit = %v, want a malformed-message error", err)
	}
}

// TestArrayLengthCapRejected forges an array length prefix over
// ArrayMaxSize directly in a sealed message's body and confirms
// EnterContainer rejects it, rather than trusting whatever a peer
// claims about an array's size.
func TestArrayLengthCapRejected(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "Big")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	if err := m.OpenContainer(dbus.ContainerArray, "i"); err != nil {
		t.Fatalf("OpenContainer(array): %v", err)
	}
	if err := m.AppendBasic(dbus.TypeInt32, int32(0x11223344)); err != nil {
		t.Fatalf("AppendBasic: %v", err)
	}
	if err := m.CloseContainer(); err != nil {
		t.Fatalf("CloseContainer: %v", err)
	}
	if err := m.Seal(12); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	// The body is exactly an 8-byte array: a 4-byte length prefix
	// (currently 4) followed by one 4-byte int32 element.
	corrupted := append([]byte(nil), blob...)
	bodyOff := len(corrupted) - 8
	wire.NativeEndian.PutUint32(corrupted[bodyOff:bodyOff+4], 0xffffffff)

	m2, err := dbus.FromBuffer(corrupted, nil)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if _, err := m2.EnterContainer(dbus.ContainerArray, "i"); err == nil {
		t.Fatal("EnterContainer succeeded despite a forged array length over the cap, want a malformed-message error")
	}
}

// TestMalformedStructPaddingRejected flips a zero-padding byte between
// two struct fields and confirms reading past it fails, matching
// spec.md §8 concrete scenario 4 through a real Message/FromBuffer
// round trip rather than at the bare wire.Cursor.Pad level.
func TestMalformedStructPaddingRejected(t *testing.T) {
	m, err := dbus.NewSignal("/org/example/Obj", "org.example.Iface", "Padded")
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	if err := m.OpenContainer(dbus.ContainerStruct, "yx"); err != nil {
		t.Fatalf("OpenContainer(struct): %v", err)
	}
	if err := m.AppendBasic(dbus.TypeByte, byte(1)); err != nil {
		t.Fatalf("AppendBasic(byte): %v", err)
	}
	if err := m.AppendBasic(dbus.TypeInt64, int64(99)); err != nil {
		t.Fatalf("AppendBasic(int64): %v", err)
	}
	if err := m.CloseContainer(); err != nil {
		t.Fatalf("CloseContainer: %v", err)
	}
	if err := m.Seal(13); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	blob, err := m.Blob()
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}

	// The body is exactly 16 bytes: one BYTE field, 7 bytes of
	// zero padding, then one INT64 field.
	bodyOff := len(blob) - 16
	if blob[bodyOff+3] != 0 {
		t.Fatalf("expected a zero padding byte at body offset 3, blob = %v", blob)
	}
	corrupted := append([]byte(nil), blob...)
	corrupted[bodyOff+3] = 0xab

	m2, err := dbus.FromBuffer(corrupted, nil)
	if err != nil {
		t.Fatalf("FromBuffer unexpectedly failed: %v", err)
	}
	if _, err := m2.EnterContainer(dbus.ContainerStruct, "yx"); err != nil {
		t.Fatalf("EnterContainer(struct): %v", err)
	}
	if _, err := m2.ReadBasic(dbus.TypeByte); err != nil {
		t.Fatalf("ReadBasic(byte): %v", err)
	}
	if _, err := m2.ReadBasic(dbus.TypeInt64); err == nil {
		t.Fatal("ReadBasic(int64) succeeded despite a corrupted padding byte, want a malformed-message error")
	}
}
