package zipstore

import (
	"errors"
	"fmt"

	"github.com/nguyengg/zipstore/store"
)

var (
	// ErrUnknownSize is returned by Open if the backing store cannot report the size of the archive.
	ErrUnknownSize = errors.New("archive size unknown")

	// ErrMalformedArchive is wrapped by every error caused by malformed archive data.
	//
	// This includes errors from parsing the central directory, reading a local file header, decompressing an entry,
	// and any decompressed size mismatch.
	ErrMalformedArchive = errors.New("malformed zip archive")

	// ErrLocalHeader is returned if the local file header of a stored entry cannot be read.
	ErrLocalHeader = fmt.Errorf("%w: invalid local file header", ErrMalformedArchive)

	// ErrArchiveDataNotFound is returned if the backing store no longer has the archive while it is being read.
	ErrArchiveDataNotFound = errors.New("archive data not found")

	// ErrEntryDataNotFound is returned if the backing store does not return the content of a stored entry.
	ErrEntryDataNotFound = errors.New("entry data not found")
)

// SizeMismatchError is returned if decompressing an entry produces a different number of bytes than its recorded
// uncompressed size.
type SizeMismatchError struct {
	Key      store.Key
	Expected uint64
	Actual   uint64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf(`decompressed size mismatch for "%s": expected %d bytes, got %d`, e.Key, e.Expected, e.Actual)
}

func (e *SizeMismatchError) Unwrap() error {
	return ErrMalformedArchive
}

// InvalidIdentifierError is returned by Open if an archive path, after the root has been stripped, is neither a valid
// store.Key nor a valid store.Prefix.
type InvalidIdentifierError struct {
	// Name is the path of the entry in the archive.
	Name string
	// Err is either store.ErrInvalidKey or store.ErrInvalidPrefix.
	Err error
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf(`invalid identifier for archive path "%s": %v`, e.Name, e.Err)
}

func (e *InvalidIdentifierError) Unwrap() error {
	return e.Err
}

func malformed(err error) error {
	if errors.Is(err, ErrMalformedArchive) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrMalformedArchive, err)
}
