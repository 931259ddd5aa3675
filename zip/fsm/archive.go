package fsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// DefaultCentralDirectoryReadSize is the maximum number of central directory bytes requested per read.
	DefaultCentralDirectoryReadSize = 64 * 1024
)

type archiveState uint8

const (
	stateEOCD archiveState = iota
	stateZip64
	stateCentralDirectory
	stateArchiveDone
)

// ArchiveFSM incrementally parses the central directory of a zip archive of known size.
//
// ArchiveFSM performs no I/O of its own. The caller drives it in a loop:
//
//	m := fsm.NewArchiveFSM(size)
//	for {
//		if off, ok := m.WantsRead(); ok {
//			n := read(off, m.Space()) // 0 at end of input
//			m.Fill(n)
//			continue
//		}
//
//		archive, err := m.Process()
//		if err != nil {
//			return err
//		}
//		if archive != nil {
//			return archive
//		}
//	}
//
// The zero value is not usable; use NewArchiveFSM.
type ArchiveFSM struct {
	size  uint64
	state archiveState
	buf   buffer
	// need is the number of filled bytes the current state requires before it can make progress.
	need int
	// limit is the offset at which the central directory must end.
	limit   uint64
	eocd    eocdRecord
	entries []Entry
	archive *Archive
	err     error
}

// NewArchiveFSM returns a parser for an archive that is exactly size bytes long.
func NewArchiveFSM(size uint64) *ArchiveFSM {
	n := min(size, maxEOCDSearch)
	return &ArchiveFSM{
		size:  size,
		state: stateEOCD,
		buf:   newBuffer(int(n), size-n),
		need:  int(n),
	}
}

// WantsRead returns the archive offset of the next byte the parser needs, and true if the parser cannot make progress
// without more input.
func (m *ArchiveFSM) WantsRead() (uint64, bool) {
	if m.err != nil || m.state == stateArchiveDone || m.buf.eof || len(m.buf.bytes()) >= m.need {
		return 0, false
	}

	return m.buf.next(), true
}

// Space returns the buffer that the next read should be copied into.
//
// The caller may fill fewer bytes than len(Space()), but must not fill more.
func (m *ArchiveFSM) Space() []byte {
	return m.buf.space()
}

// Fill marks the first n bytes of Space as filled and returns the number of bytes accepted.
//
// Fill(0) signals the end of input.
func (m *ArchiveFSM) Fill(n int) int {
	return m.buf.fill(n)
}

// Process advances the parser as far as the buffered input allows.
//
// It returns a non-nil Archive once the entire central directory has been parsed, or (nil, nil) if more input is
// needed. Any returned error wraps ErrFormat and is sticky.
func (m *ArchiveFSM) Process() (*Archive, error) {
	if m.err != nil {
		return nil, m.err
	}

	archive, err := m.process()
	if err != nil {
		m.err = fmt.Errorf("%w: %w", ErrFormat, err)
		return nil, m.err
	}

	return archive, nil
}

func (m *ArchiveFSM) process() (*Archive, error) {
	for {
		switch m.state {
		case stateArchiveDone:
			return m.archive, nil
		case stateCentralDirectory:
			if uint64(len(m.entries)) == m.eocd.CDCount {
				m.archive = &Archive{Size: m.size, Comment: m.eocd.Comment, Entries: m.entries}
				m.state = stateArchiveDone
				continue
			}
		}

		if len(m.buf.bytes()) < m.need {
			if m.buf.eof {
				return nil, fmt.Errorf("%w: need %d bytes at offset %d, got %d", ErrUnexpectedEOF, m.need, m.buf.start(), len(m.buf.bytes()))
			}

			return nil, nil
		}

		var err error
		switch m.state {
		case stateEOCD:
			err = m.processEOCD()
		case stateZip64:
			err = m.processZip64()
		case stateCentralDirectory:
			err = m.processFileHeader()
		}

		if err != nil {
			return nil, err
		}
	}
}

func (m *ArchiveFSM) processEOCD() error {
	if m.size < eocdLen {
		return fmt.Errorf("archive of %d bytes is too small to contain an EOCD record", m.size)
	}

	window := m.buf.bytes()
	i, r, err := findEOCD(window)
	if err != nil {
		return err
	}

	m.eocd = r
	m.limit = m.buf.start() + uint64(i)

	if r.needsZip64() && i >= eocd64LocLen && bytes.Equal(window[i-eocd64LocLen:i-eocd64LocLen+4], putUint32(eocd64LocSig)) {
		off, err := unmarshalZip64Locator(window[i-eocd64LocLen : i])
		if err != nil {
			return err
		}
		if off > m.limit-eocd64LocLen || m.limit-eocd64LocLen-off < eocd64Len {
			return fmt.Errorf("ZIP64 EOCD offset %d is out of bounds", off)
		}

		m.limit = off
		m.state = stateZip64
		m.seek(off, eocd64Len)
		return nil
	}

	return m.startCentralDirectory()
}

func (m *ArchiveFSM) processZip64() error {
	if err := unmarshalZip64EOCD(m.buf.bytes(), &m.eocd); err != nil {
		return err
	}

	return m.startCentralDirectory()
}

func (m *ArchiveFSM) startCentralDirectory() error {
	r := m.eocd
	if r.CDOffset > m.limit || r.CDSize > m.limit-r.CDOffset {
		return fmt.Errorf("central directory (offset %d, size %d) extends past its end record at offset %d", r.CDOffset, r.CDSize, m.limit)
	}
	if r.CDCount > r.CDSize/cdfhLen {
		return fmt.Errorf("central directory of %d bytes cannot hold %d records", r.CDSize, r.CDCount)
	}

	m.entries = make([]Entry, 0, r.CDCount)
	m.state = stateCentralDirectory
	m.seek(r.CDOffset, int(min(max(r.CDSize, cdfhLen), DefaultCentralDirectoryReadSize)))
	m.need = cdfhLen
	return nil
}

func (m *ArchiveFSM) processFileHeader() error {
	if sig := binary.LittleEndian.Uint32(m.buf.bytes()[:4]); sig != cdfhSig {
		return fmt.Errorf("mismatched signature of central directory record #%d, got 0x%x, expected 0x%x", len(m.entries), sig, cdfhSig)
	}

	n := cdHeaderLen(m.buf.bytes())
	if len(m.buf.bytes()) < n {
		m.need = n
		m.buf.reserve(n)
		return nil
	}

	e, err := unmarshalCDFileHeader(m.buf.bytes()[:n])
	if err != nil {
		return fmt.Errorf("parse central directory record #%d error: %w", len(m.entries), err)
	}

	m.entries = append(m.entries, e)
	m.buf.consume(n)
	m.need = cdfhLen
	return nil
}

// seek positions the buffer at off, keeping any bytes already buffered from off onwards.
func (m *ArchiveFSM) seek(off uint64, capacity int) {
	if off >= m.buf.start() && off <= m.buf.next() {
		m.buf.consume(int(off - m.buf.start()))
		m.buf.reserve(capacity)
	} else {
		m.buf = newBuffer(capacity, off)
	}

	m.need = capacity
}
