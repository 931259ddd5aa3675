package fsm

// buffer holds a window of archive bytes.
//
// data[pos:] are the filled bytes that have not been consumed yet and start at archive offset off+pos. The part that
// can still be filled is data[len(data):cap(data)].
type buffer struct {
	data []byte
	pos  int
	off  uint64
	eof  bool
}

func newBuffer(capacity int, off uint64) buffer {
	return buffer{data: make([]byte, 0, capacity), off: off}
}

// bytes returns the filled bytes that have not been consumed.
func (b *buffer) bytes() []byte {
	return b.data[b.pos:]
}

// start returns the archive offset of bytes()[0].
func (b *buffer) start() uint64 {
	return b.off + uint64(b.pos)
}

// next returns the archive offset of the next byte the buffer wants.
func (b *buffer) next() uint64 {
	return b.off + uint64(len(b.data))
}

// space returns the unfilled part of the buffer, compacting consumed bytes first.
func (b *buffer) space() []byte {
	b.compact()
	return b.data[len(b.data):cap(b.data)]
}

// fill marks the next n bytes of space as filled. n == 0 marks end of input.
func (b *buffer) fill(n int) int {
	if n == 0 {
		b.eof = true
		return 0
	}

	n = min(n, cap(b.data)-len(b.data))
	b.data = b.data[:len(b.data)+n]
	return n
}

// consume drops the first n unconsumed bytes.
func (b *buffer) consume(n int) {
	b.pos += n
}

// reserve makes sure the buffer can hold at least n unconsumed bytes.
func (b *buffer) reserve(n int) {
	b.compact()
	if cap(b.data) >= n {
		return
	}

	data := make([]byte, len(b.data), n)
	copy(data, b.data)
	b.data = data
}

func (b *buffer) compact() {
	if b.pos == 0 {
		return
	}

	m := copy(b.data, b.data[b.pos:])
	b.data = b.data[:m]
	b.off += uint64(b.pos)
	b.pos = 0
}
