package busmsg

// ContainerDepthMax is the maximum nesting depth of open containers,
// enforced identically on build and on parse (spec.md §3 invariant
// 4).
const ContainerDepthMax = 64

// ArrayMaxSize is the largest permitted encoded length, in bytes, of
// an ARRAY's elements (spec.md §3 invariant 3).
const ArrayMaxSize = 64 * 1024 * 1024

// containerFrame is one entry in a message's open-container stack.
//
// arraySize and begin are plain byte offsets into the body buffer,
// not pointers: see the comment on [wire.Buffer] for why this is
// what lets the codec avoid an explicit pointer-rebase step when a
// region grows.
type containerFrame struct {
	// enclosing is the kind of this container.
	enclosing Container
	// signature is the contents signature: for ARRAY and VARIANT, the
	// single complete type of every element; for STRUCT and
	// DICT_ENTRY, the full field sequence.
	signature string
	// index is the cursor into signature. For ARRAY frames this never
	// advances: every element reuses the same signature slot.
	index int
	// arraySize is the body offset of this ARRAY's u32 length prefix.
	// Unused for other container kinds.
	arraySize int
	// length is the running byte count of an ARRAY's elements, mirrored
	// into the body at arraySize on every change. Unused for other
	// container kinds.
	length uint32
	// begin is the body offset at which this container's contents
	// start: just after the ARRAY length prefix and its element-
	// alignment padding, after the 8-byte alignment padding for
	// STRUCT/DICT_ENTRY, or after the embedded signature for VARIANT.
	begin int
}

// containerStack is the depth-bounded stack of open containers shared
// by the writer and the reader.
type containerStack struct {
	frames []containerFrame
}

func (s *containerStack) depth() int { return len(s.frames) }

func (s *containerStack) atDepthLimit() bool { return len(s.frames) >= ContainerDepthMax }

func (s *containerStack) top() *containerFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

func (s *containerStack) push(f containerFrame) {
	s.frames = append(s.frames, f)
}

func (s *containerStack) pop() containerFrame {
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// arrayFrames returns every currently open ARRAY frame, outermost
// first. Every body extension must add its length delta to each of
// these, since a nested container's bytes also count toward every
// enclosing array's length (spec.md §4.3).
func (s *containerStack) arrayFrames() []*containerFrame {
	var ret []*containerFrame
	for i := range s.frames {
		if s.frames[i].enclosing == ContainerArray {
			ret = append(ret, &s.frames[i])
		}
	}
	return ret
}

// cursorRemaining returns the unconsumed portion of the current
// frame's (or, with no open container, the root's) signature.
func (m *Message) cursorRemaining() string {
	if f := m.containers.top(); f != nil {
		if f.enclosing == ContainerArray {
			return f.signature
		}
		return f.signature[f.index:]
	}
	return m.rootSig[m.rootIndex:]
}

// cursorAdvance advances the current frame's (or root's) signature
// cursor by n characters. ARRAY frames never advance: every element
// reuses the same signature slot.
func (m *Message) cursorAdvance(n int) {
	if f := m.containers.top(); f != nil {
		if f.enclosing != ContainerArray {
			f.index += n
		}
		return
	}
	m.rootIndex += n
}

// cursorExtendRoot appends unit to the root signature, leaving the
// root cursor at the start of unit so that the caller's cursorAdvance
// moves it past unit. Only legal when there is no open container;
// callers must check that themselves.
func (m *Message) cursorExtendRoot(unit string) {
	m.rootSig += unit
}

// growArrays adds delta to the running length of every currently open
// ARRAY frame and mirrors the new length into the body buffer. It
// must be called for every byte added to the body, including
// alignment padding, except for the padding that precedes an ARRAY's
// own begin marker (spec.md §4.3).
func (m *Message) growArrays(delta int) {
	if delta == 0 {
		return
	}
	for _, f := range m.containers.arrayFrames() {
		f.length += uint32(delta)
		m.body.PutUint32(f.arraySize, f.length)
	}
}
