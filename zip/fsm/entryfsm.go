package fsm

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
)

type entryState uint8

const (
	stateLocalHeader entryState = iota
	stateData
	stateDecode
	stateEntryDone
)

// Outcome describes the result of a single EntryFSM.Process call.
type Outcome struct {
	// BytesWritten is the number of decompressed bytes written to the output buffer.
	BytesWritten int
	// Done is true once the entry's content has been fully written and verified.
	Done bool
}

// EntryFSM incrementally reads and decompresses the content of a single entry.
//
// Input is fed starting at the entry's HeaderOffset the same way as ArchiveFSM: while WantsRead is true, copy the next
// bytes of the archive into Space and call Fill. The compressed content is buffered entirely in memory since the
// compressed stream can only be decoded from its start.
//
// The zero value is not usable; use NewEntryFSM.
type EntryFSM struct {
	entry  Entry
	state  entryState
	buf    buffer
	need   int
	dec    io.ReadCloser
	crc    hash.Hash32
	probe  [1]byte
	closed bool
	err    error
}

// NewEntryFSM returns a decompressor for the given entry.
func NewEntryFSM(e Entry) *EntryFSM {
	return &EntryFSM{
		entry: e,
		state: stateLocalHeader,
		buf:   newBuffer(lfhLen+len(e.Name), e.HeaderOffset),
		need:  lfhLen,
		crc:   crc32.NewIEEE(),
	}
}

// Offset returns the archive offset of the next byte the machine wants.
func (m *EntryFSM) Offset() uint64 {
	return m.buf.next()
}

// WantsRead returns true if the machine cannot make progress without more input.
func (m *EntryFSM) WantsRead() bool {
	return m.err == nil && m.state < stateDecode && !m.buf.eof && len(m.buf.bytes()) < m.need
}

// Space returns the buffer that the next read should be copied into.
func (m *EntryFSM) Space() []byte {
	return m.buf.space()
}

// Fill marks the first n bytes of Space as filled and returns the number of bytes accepted.
//
// Fill(0) signals the end of input.
func (m *EntryFSM) Fill(n int) int {
	return m.buf.fill(n)
}

// Process advances the machine, writing decompressed bytes into out.
//
// If the machine needs more input, Process returns a zero Outcome and a nil error. Errors are sticky; errors caused by
// malformed data wrap ErrFormat.
func (m *EntryFSM) Process(out []byte) (Outcome, error) {
	if m.err != nil {
		return Outcome{}, m.err
	}

	o, err := m.process(out)
	if err != nil {
		m.close()
		m.err = err
		return o, err
	}

	return o, nil
}

func (m *EntryFSM) process(out []byte) (Outcome, error) {
	for {
		switch m.state {
		case stateEntryDone:
			return Outcome{Done: true}, nil
		case stateDecode:
			return m.decode(out)
		}

		if len(m.buf.bytes()) < m.need {
			if m.buf.eof {
				return Outcome{}, fmt.Errorf("%w: %w: need %d bytes at offset %d, got %d", ErrFormat, ErrUnexpectedEOF, m.need, m.buf.start(), len(m.buf.bytes()))
			}

			return Outcome{}, nil
		}

		switch m.state {
		case stateLocalHeader:
			if m.entry.Encrypted() {
				return Outcome{}, fmt.Errorf("%w: %s", ErrEncrypted, m.entry.Name)
			}
			if decompressor(m.entry.Method) == nil {
				return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, m.entry.Method)
			}

			n, err := localHeaderLen(m.buf.bytes())
			if err != nil {
				return Outcome{}, fmt.Errorf("%w: %w", ErrFormat, err)
			}
			if m.entry.CompressedSize > math.MaxInt-uint64(n) {
				return Outcome{}, fmt.Errorf("%w: compressed size %d is too large", ErrFormat, m.entry.CompressedSize)
			}

			m.need = n + int(m.entry.CompressedSize)
			m.buf.reserve(m.need)
			m.state = stateData

		case stateData:
			compressed := m.buf.bytes()[m.need-int(m.entry.CompressedSize) : m.need]
			dec, err := decompressor(m.entry.Method)(bytes.NewReader(compressed), m.entry.Flags, m.entry.UncompressedSize)
			if err != nil {
				return Outcome{}, fmt.Errorf("%w: %w", ErrFormat, err)
			}

			m.dec = dec
			m.state = stateDecode
		}
	}
}

func (m *EntryFSM) decode(out []byte) (Outcome, error) {
	if len(out) == 0 {
		// the caller has no room left, so the stream must be exhausted.
		switch n, err := m.dec.Read(m.probe[:]); {
		case n > 0:
			return Outcome{}, fmt.Errorf("%w: content of %s exceeds its declared size", ErrFormat, m.entry.Name)
		case errors.Is(err, io.EOF):
			return m.finish(0)
		case err != nil:
			return Outcome{}, fmt.Errorf("%w: decompress %s error: %w", ErrFormat, m.entry.Name, err)
		default:
			return Outcome{}, nil
		}
	}

	n, err := m.dec.Read(out)
	m.crc.Write(out[:n])

	switch {
	case errors.Is(err, io.EOF):
		return m.finish(n)
	case err != nil:
		return Outcome{BytesWritten: n}, fmt.Errorf("%w: decompress %s error: %w", ErrFormat, m.entry.Name, err)
	default:
		return Outcome{BytesWritten: n}, nil
	}
}

func (m *EntryFSM) finish(n int) (Outcome, error) {
	m.close()

	if sum := m.crc.Sum32(); m.entry.CRC32 != 0 && sum != m.entry.CRC32 {
		return Outcome{BytesWritten: n}, fmt.Errorf("%w: %w: %s has CRC-32 0x%08x, expected 0x%08x", ErrFormat, ErrChecksum, m.entry.Name, sum, m.entry.CRC32)
	}

	m.state = stateEntryDone
	return Outcome{BytesWritten: n, Done: true}, nil
}

func (m *EntryFSM) close() {
	if m.dec != nil && !m.closed {
		_ = m.dec.Close()
		m.closed = true
	}
}
