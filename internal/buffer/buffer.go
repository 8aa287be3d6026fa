package buffer

// Buffer is an arena for the request head. Request target, header keys and values are written
// into it one after another, and every completed segment stays valid until Clear. Writes beyond
// the ceiling are rejected, so the arena never grows past it.
type Buffer struct {
	memory  []byte
	begin   int
	ceiling int
}

func New(initialSize, ceiling int) Buffer {
	return Buffer{
		memory:  make([]byte, 0, min(initialSize, ceiling)),
		ceiling: ceiling,
	}
}

// Append writes data into the current segment. If the ceiling would be exceeded,
// nothing is written and false is returned.
func (b *Buffer) Append(elements ...byte) (ok bool) {
	if len(b.memory)+len(elements) > b.ceiling {
		return false
	}

	b.memory = append(b.memory, elements...)
	return true
}

// AppendString is the same as Append, but for strings.
func (b *Buffer) AppendString(str string) (ok bool) {
	if len(b.memory)+len(str) > b.ceiling {
		return false
	}

	b.memory = append(b.memory, str...)
	return true
}

// SegmentLength returns a number of bytes, taken by current segment.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// Len returns the number of bytes occupied by all the segments, including the current one.
func (b *Buffer) Len() int {
	return len(b.memory)
}

// Trunc truncates the last n bytes from the current segment, guarantying that data of previous
// segments stays intact.
func (b *Buffer) Trunc(n int) {
	b.memory = b.memory[:len(b.memory)-min(n, b.SegmentLength())]
}

// Discard drops the current segment.
func (b *Buffer) Discard() {
	b.memory = b.memory[:b.begin]
}

// Preview returns current segment without completing it.
func (b *Buffer) Preview() []byte {
	return b.memory[b.begin:]
}

// Finish completes current segment, returning its value.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:]
	b.begin = len(b.memory)

	return segment
}

// Clear just resets the pointers, so old values may be overridden by new ones.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
