package fsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	lfhSig         = 0x04034b50
	cdfhSig        = 0x02014b50
	eocdSig        = 0x06054b50
	eocd64Sig      = 0x06064b50
	eocd64LocSig   = 0x07064b50
	lfhLen         = 30
	cdfhLen        = 46
	eocdLen        = 22
	eocd64Len      = 56
	eocd64LocLen   = 20
	zip64ExtraID   = 0x0001
	extTimeExtraID = 0x5455
	uint16max      = 0xffff
	uint32max      = 0xffffffff
	maxCommentLen  = uint16max
	maxEOCDSearch  = eocdLen + maxCommentLen + eocd64LocLen
)

var eocdSigBytes = putUint32(eocdSig)

func putUint32(v uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// eocdRecord models the end of central directory record, possibly upgraded with values from the ZIP64 record.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type eocdRecord struct {
	DiskNumber    uint32
	CDDisk        uint32
	CDCountOnDisk uint64
	CDCount       uint64
	CDSize        uint64
	CDOffset      uint64
	Comment       string
}

// needsZip64 reports whether any field is saturated, meaning the real value lives in the ZIP64 record.
func (r *eocdRecord) needsZip64() bool {
	return r.CDCountOnDisk == uint16max || r.CDCount == uint16max || r.CDSize == uint32max || r.CDOffset == uint32max
}

// unmarshalEOCDRecord decodes the 22-byte fixed part and the trailing comment of the EOCD record.
func unmarshalEOCDRecord(b []byte) (r eocdRecord, err error) {
	data := &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDisk        uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{}

	if err = binary.Read(bytes.NewReader(b[:eocdLen]), binary.LittleEndian, data); err != nil {
		return r, fmt.Errorf("unmarshal EOCD error: %w", err)
	}
	if data.Signature != eocdSig {
		return r, fmt.Errorf("mismatched EOCD signature, got 0x%x, expected 0x%x", data.Signature, eocdSig)
	}
	if n := eocdLen + int(data.CommentLength); n > len(b) {
		return r, fmt.Errorf("EOCD comment of %d bytes extends past end of archive", data.CommentLength)
	}

	return eocdRecord{
		DiskNumber:    uint32(data.DiskNumber),
		CDDisk:        uint32(data.CDDisk),
		CDCountOnDisk: uint64(data.CDCountOnDisk),
		CDCount:       uint64(data.CDCount),
		CDSize:        uint64(data.CDSize),
		CDOffset:      uint64(data.CDOffset),
		Comment:       string(b[eocdLen : eocdLen+int(data.CommentLength)]),
	}, nil
}

// findEOCD searches window backwards for a plausible EOCD record and returns its index within window.
//
// A candidate is plausible if its comment does not extend past the end of the window.
func findEOCD(window []byte) (int, eocdRecord, error) {
	for end := len(window); end >= 4; {
		i := bytes.LastIndex(window[:end], eocdSigBytes)
		if i == -1 {
			break
		}

		if i+eocdLen <= len(window) {
			if r, err := unmarshalEOCDRecord(window[i:]); err == nil {
				return i, r, nil
			}
		}

		end = i
	}

	return -1, eocdRecord{}, ErrNoEOCDFound
}

// unmarshalZip64Locator decodes the 20-byte ZIP64 end of central directory locator and returns the offset of the
// ZIP64 end of central directory record.
func unmarshalZip64Locator(b []byte) (uint64, error) {
	data := &struct {
		Signature  uint32
		Disk       uint32
		EOCD64Off  uint64
		TotalDisks uint32
	}{}

	if err := binary.Read(bytes.NewReader(b[:eocd64LocLen]), binary.LittleEndian, data); err != nil {
		return 0, fmt.Errorf("unmarshal ZIP64 locator error: %w", err)
	}
	if data.Signature != eocd64LocSig {
		return 0, fmt.Errorf("mismatched ZIP64 locator signature, got 0x%x, expected 0x%x", data.Signature, eocd64LocSig)
	}

	return data.EOCD64Off, nil
}

// unmarshalZip64EOCD decodes the 56-byte fixed part of the ZIP64 end of central directory record into r.
func unmarshalZip64EOCD(b []byte, r *eocdRecord) error {
	data := &struct {
		Signature      uint32
		RecordSize     uint64
		CreatorVersion uint16
		ReaderVersion  uint16
		DiskNumber     uint32
		CDDisk         uint32
		CDCountOnDisk  uint64
		CDCount        uint64
		CDSize         uint64
		CDOffset       uint64
	}{}

	if err := binary.Read(bytes.NewReader(b[:eocd64Len]), binary.LittleEndian, data); err != nil {
		return fmt.Errorf("unmarshal ZIP64 EOCD error: %w", err)
	}
	if data.Signature != eocd64Sig {
		return fmt.Errorf("mismatched ZIP64 EOCD signature, got 0x%x, expected 0x%x", data.Signature, eocd64Sig)
	}

	r.DiskNumber = data.DiskNumber
	r.CDDisk = data.CDDisk
	r.CDCountOnDisk = data.CDCountOnDisk
	r.CDCount = data.CDCount
	r.CDSize = data.CDSize
	r.CDOffset = data.CDOffset
	return nil
}

// cdHeaderLen returns the total length of the central directory file header starting at b[0].
//
// b must contain at least the 46-byte fixed part.
func cdHeaderLen(b []byte) int {
	n := int(binary.LittleEndian.Uint16(b[28:30]))
	m := int(binary.LittleEndian.Uint16(b[30:32]))
	k := int(binary.LittleEndian.Uint16(b[32:34]))
	return cdfhLen + n + m + k
}

// unmarshalCDFileHeader decodes a complete central directory file header.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#Central_directory_file_header_(CDFH).
func unmarshalCDFileHeader(b []byte) (e Entry, err error) {
	data := &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{}

	if err = binary.Read(bytes.NewReader(b[:cdfhLen]), binary.LittleEndian, data); err != nil {
		return e, fmt.Errorf("unmarshal CD file header error: %w", err)
	}
	if data.Signature != cdfhSig {
		return e, fmt.Errorf("mismatched CD file header signature, got 0x%x, expected 0x%x", data.Signature, cdfhSig)
	}

	n, m, k := int(data.FileNameLength), int(data.ExtraFieldLength), int(data.FileCommentLength)
	if len(b) < cdfhLen+n+m+k {
		return e, fmt.Errorf("insufficient CD file header data: expected at least %d bytes, got %d", cdfhLen+n+m+k, len(b))
	}

	name, extra, comment := b[cdfhLen:cdfhLen+n], b[cdfhLen+n:cdfhLen+n+m], b[cdfhLen+n+m:cdfhLen+n+m+k]
	e = Entry{
		Name:             decodeString(name, data.Flags),
		Comment:          decodeString(comment, data.Flags),
		Method:           Method(data.Method),
		Flags:            data.Flags,
		CreatorVersion:   data.CreatorVersion,
		ReaderVersion:    data.ReaderVersion,
		CRC32:            data.CRC32,
		CompressedSize:   uint64(data.CompressedSize),
		UncompressedSize: uint64(data.UncompressedSize),
		HeaderOffset:     uint64(data.Offset),
		Modified:         msDosTimeToTime(data.ModifiedDate, data.ModifiedTime),
		ExternalAttrs:    data.ExternalAttrs,
	}

	if err = parseExtra(&e, extra); err != nil {
		return e, fmt.Errorf(`parse extra fields of "%s" error: %w`, e.Name, err)
	}

	return e, nil
}

// parseExtra applies the ZIP64 and extended timestamp extra fields to e.
func parseExtra(e *Entry, extra []byte) error {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if 4+size > len(extra) {
			return fmt.Errorf("extra field 0x%x of %d bytes is truncated", id, size)
		}

		field := extra[4 : 4+size]
		extra = extra[4+size:]

		switch id {
		case zip64ExtraID:
			// values are only present for the fields that are saturated, in this exact order.
			next := func(v *uint64) error {
				if *v != uint32max {
					return nil
				}
				if len(field) < 8 {
					return fmt.Errorf("ZIP64 extra field is too short")
				}
				*v = binary.LittleEndian.Uint64(field[:8])
				field = field[8:]
				return nil
			}

			for _, v := range []*uint64{&e.UncompressedSize, &e.CompressedSize, &e.HeaderOffset} {
				if err := next(v); err != nil {
					return err
				}
			}

		case extTimeExtraID:
			if len(field) >= 5 && field[0]&1 != 0 {
				e.Modified = time.Unix(int64(int32(binary.LittleEndian.Uint32(field[1:5]))), 0).UTC()
			}
		}
	}

	return nil
}

// decodeString returns b as a string, decoding from CP437 if the UTF-8 flag is not set and b is not valid UTF-8.
func decodeString(b []byte, flags uint16) string {
	if flags&flagUTF8 != 0 || utf8.Valid(b) {
		return string(b)
	}

	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}

	return string(s)
}

// localHeaderLen validates the local file header starting at b[0] and returns its total length.
//
// b must contain at least the 30-byte fixed part. Only the name and extra field lengths at offsets 26 and 28 are used;
// the sizes in the local header may be zero when a data descriptor follows the content.
func localHeaderLen(b []byte) (int, error) {
	if sig := binary.LittleEndian.Uint32(b[:4]); sig != lfhSig {
		return 0, fmt.Errorf("mismatched local file header signature, got 0x%x, expected 0x%x", sig, lfhSig)
	}

	n := int(binary.LittleEndian.Uint16(b[26:28]))
	m := int(binary.LittleEndian.Uint16(b[28:30]))
	return lfhLen + n + m, nil
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// taken from https://go.dev/src/archive/zip/struct.go.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
