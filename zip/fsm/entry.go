package fsm

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"time"
)

// Method identifies the compression method of an entry.
type Method uint16

const (
	Store   Method = 0
	Deflate Method = 8
	Bzip2   Method = 12
	LZMA    Method = 14
	// ZstdDeprecated is the method id used by some early writers before 93 was assigned to Zstandard.
	ZstdDeprecated Method = 20
	Zstd           Method = 93
	XZ             Method = 95
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case Zstd, ZstdDeprecated:
		return "zstd"
	case XZ:
		return "xz"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Kind classifies an entry.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

const (
	flagEncrypted uint16 = 0x1
	flagLZMAEOS   uint16 = 0x2
	flagUTF8      uint16 = 0x800
)

// Entry is a file, directory, or symlink recorded in the central directory of a zip archive.
type Entry struct {
	// Name is the path of the entry within the archive. Directories end with "/".
	Name string
	// Comment is the entry's file comment.
	Comment string
	// Method is the compression method.
	Method Method
	// Flags is the general purpose bit flag.
	Flags uint16
	// CreatorVersion is the "version made by" field; the high byte identifies the host system.
	CreatorVersion uint16
	// ReaderVersion is the "version needed to extract" field.
	ReaderVersion uint16
	// CRC32 is the checksum of the uncompressed content.
	CRC32 uint32
	// CompressedSize is the number of bytes the entry occupies in the archive after its local file header.
	CompressedSize uint64
	// UncompressedSize is the number of bytes of the entry's content.
	UncompressedSize uint64
	// HeaderOffset is the offset of the entry's local file header relative to the start of the archive.
	HeaderOffset uint64
	// Modified is the modification time, from the extended timestamp extra field if present.
	Modified time.Time
	// ExternalAttrs are the host-dependent file attributes.
	ExternalAttrs uint32
}

// Mode returns the permission and mode bits of the entry.
func (e *Entry) Mode() fs.FileMode {
	fh := zip.FileHeader{Name: e.Name, CreatorVersion: e.CreatorVersion, ExternalAttrs: e.ExternalAttrs}
	return fh.Mode()
}

// Kind classifies the entry from its mode bits and name.
func (e *Entry) Kind() Kind {
	switch mode := e.Mode(); {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDirectory
	default:
		return KindFile
	}
}

// Encrypted reports whether the entry's content is encrypted.
func (e *Entry) Encrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// Archive is the result of parsing a zip archive's central directory.
type Archive struct {
	// Size is the size of the whole archive in bytes.
	Size uint64
	// Comment is the archive comment from the end of central directory record.
	Comment string
	// Entries are in central directory order.
	Entries []Entry
}
