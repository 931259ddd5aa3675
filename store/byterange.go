package store

import (
	"fmt"
	"math"
)

type rangeKind uint8

const (
	fromStart rangeKind = iota
	toEnd
	suffix
)

// ByteRange describes a contiguous span of bytes within a value whose size may not be known ahead of time.
//
// Use FromStart, FromOffset, or Suffix to create a ByteRange. The zero value is FromStart(0, 0).
type ByteRange struct {
	offset, length uint64
	kind           rangeKind
}

// FromStart returns the range of length bytes starting at offset.
func FromStart(offset, length uint64) ByteRange {
	return ByteRange{offset: offset, length: length, kind: fromStart}
}

// FromOffset returns the range starting at offset and ending at the end of the value.
func FromOffset(offset uint64) ByteRange {
	return ByteRange{offset: offset, kind: toEnd}
}

// Suffix returns the range of the last length bytes of the value.
func Suffix(length uint64) ByteRange {
	return ByteRange{length: length, kind: suffix}
}

// IsSuffix reports whether the range was created with Suffix.
func (r ByteRange) IsSuffix() bool {
	return r.kind == suffix
}

// Offset returns the start offset given at creation. Always 0 for Suffix ranges.
func (r ByteRange) Offset() uint64 {
	return r.offset
}

// ExplicitLength returns the length given at creation of a FromStart range.
//
// Suffix ranges are clamped to the size of the value so their length is never exact.
func (r ByteRange) ExplicitLength() (uint64, bool) {
	return r.length, r.kind == fromStart
}

// Start returns the inclusive start offset of the range within a value of the given size.
//
// Suffix ranges are clamped so that Start never underflows.
func (r ByteRange) Start(size uint64) uint64 {
	if r.kind == suffix {
		return size - min(r.length, size)
	}

	return r.offset
}

// End returns the exclusive end offset of the range within a value of the given size.
//
// End saturates at math.MaxUint64 rather than overflowing.
func (r ByteRange) End(size uint64) uint64 {
	switch r.kind {
	case fromStart:
		if r.length > math.MaxUint64-r.offset {
			return math.MaxUint64
		}
		return r.offset + r.length
	default:
		return size
	}
}

// Length returns the number of bytes covered by the range within a value of the given size.
func (r ByteRange) Length(size uint64) uint64 {
	switch r.kind {
	case fromStart:
		return r.length
	case toEnd:
		if r.offset > size {
			return 0
		}
		return size - r.offset
	default:
		return min(r.length, size)
	}
}

// Validate returns an *InvalidByteRangeError if the range does not fit within a value of the given size.
//
// A FromStart range must end at or before size and a FromOffset range must start at or before size. A Suffix range is
// always valid since it is clamped to size. An empty range positioned exactly at size is valid.
func (r ByteRange) Validate(size uint64) error {
	ok := true
	switch r.kind {
	case fromStart:
		ok = r.length <= math.MaxUint64-r.offset && r.offset+r.length <= size
	case toEnd:
		ok = r.offset <= size
	}

	if !ok {
		return &InvalidByteRangeError{Range: r, Size: size}
	}

	return nil
}

// HTTPRange returns the value of the HTTP Range header for this range.
//
// The result is empty if the range cannot be expressed as an HTTP range, which is the case for zero-length FromStart
// ranges since HTTP byte ranges are inclusive on both ends.
func (r ByteRange) HTTPRange() string {
	switch r.kind {
	case fromStart:
		if r.length == 0 {
			return ""
		}
		return fmt.Sprintf("bytes=%d-%d", r.offset, r.End(0)-1)
	case toEnd:
		return fmt.Sprintf("bytes=%d-", r.offset)
	default:
		if r.length == 0 {
			return ""
		}
		return fmt.Sprintf("bytes=-%d", r.length)
	}
}

func (r ByteRange) String() string {
	switch r.kind {
	case fromStart:
		return fmt.Sprintf("%d..%d", r.offset, r.End(0))
	case toEnd:
		return fmt.Sprintf("%d..", r.offset)
	default:
		return fmt.Sprintf("-%d", r.length)
	}
}

// InvalidByteRangeError is returned when a requested ByteRange does not fit within the value being read.
type InvalidByteRangeError struct {
	Range ByteRange
	Size  uint64
}

func (e *InvalidByteRangeError) Error() string {
	return fmt.Sprintf("invalid byte range %s for value of size %d", e.Range, e.Size)
}

// Slice validates every range against len(data) and returns an independent copy of each range.
//
// If any range is invalid, no result is returned.
func Slice(data []byte, ranges []ByteRange) ([][]byte, error) {
	size := uint64(len(data))
	for _, r := range ranges {
		if err := r.Validate(size); err != nil {
			return nil, err
		}
	}

	bufs := make([][]byte, len(ranges))
	for i, r := range ranges {
		start := r.Start(size)
		bufs[i] = append([]byte{}, data[start:start+r.Length(size)]...)
	}

	return bufs, nil
}
