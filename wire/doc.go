// Package wire provides low-level, alignment-aware encoding and
// decoding helpers for the DBus wire format.
//
// Unlike a streaming codec, [Buffer] and [Cursor] operate on whole
// byte slices and support random access: a [Buffer] keeps growing at
// its tail as a message is built, and a [Cursor] can be repositioned
// to re-read a region that was already consumed (needed to support
// message rewind).
//
// This package knows nothing about DBus container or signature
// semantics. It is the caller's responsibility to track which
// container is currently open and what type is expected next; wire
// only knows how to place bytes at the correct alignment and zero-fill
// the gaps.
package wire
