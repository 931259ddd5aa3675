package fsm

import "errors"

var (
	// ErrFormat is wrapped by every error caused by malformed archive data.
	ErrFormat = errors.New("malformed zip archive")

	// ErrNoEOCDFound is returned if no EOCD signature was found.
	ErrNoEOCDFound = errors.New("end of central directory not found; most likely not a ZIP file")

	// ErrEncrypted is returned when reading the content of an encrypted entry.
	ErrEncrypted = errors.New("encrypted entries are not supported")

	// ErrUnsupportedMethod is returned when no decompressor is registered for an entry's method.
	ErrUnsupportedMethod = errors.New("unsupported compression method")

	// ErrChecksum is returned if the decompressed content does not match the entry's CRC-32.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrUnexpectedEOF is returned if input ends before the machine is done.
	ErrUnexpectedEOF = errors.New("unexpected end of archive data")
)
