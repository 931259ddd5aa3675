package fsm

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"strconv"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

type testFile struct {
	name     string
	method   Method
	content  []byte
	mode     fs.FileMode
	modified time.Time
	nonUTF8  bool
}

// writeZip creates an in-memory zip archive with the given files in order.
func writeZip(t *testing.T, comment string, files ...testFile) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	w.RegisterCompressor(uint16(Bzip2), func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, nil)
	})
	w.RegisterCompressor(uint16(LZMA), newZipLZMAWriter)
	w.RegisterCompressor(uint16(Zstd), func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
	w.RegisterCompressor(uint16(XZ), func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})

	for _, f := range files {
		fh := &zip.FileHeader{Name: f.name, Method: uint16(f.method), Modified: f.modified, NonUTF8: f.nonUTF8}
		if f.mode != 0 {
			fh.SetMode(f.mode)
		}
		if f.method == LZMA {
			fh.Flags |= flagLZMAEOS
		}

		fw, err := w.CreateHeader(fh)
		assert.NoErrorf(t, err, "CreateHeader(%s) error = %v", f.name, err)

		_, err = fw.Write(f.content)
		assert.NoErrorf(t, err, "Write(%s) error = %v", f.name, err)
	}

	if comment != "" {
		assert.NoError(t, w.SetComment(comment))
	}
	assert.NoError(t, w.Close())

	return buf.Bytes()
}

// newZipLZMAWriter writes the zip flavour of LZMA: a 4-byte version and properties length header, the 5-byte
// properties, then the raw stream terminated by an EOS marker.
func newZipLZMAWriter(w io.Writer) (io.WriteCloser, error) {
	if _, err := w.Write([]byte{9, 20, 5, 0}); err != nil {
		return nil, err
	}

	// lzma.NewWriter emits the classic header whose 8-byte size field has no place in the zip flavour.
	return lzma.NewWriter(&skipWriter{w: w, from: 5, to: 13})
}

type skipWriter struct {
	w        io.Writer
	n        int
	from, to int
}

func (s *skipWriter) Write(p []byte) (int, error) {
	for i, b := range p {
		if pos := s.n + i; pos < s.from || pos >= s.to {
			if _, err := s.w.Write([]byte{b}); err != nil {
				return i, err
			}
		}
	}

	s.n += len(p)
	return len(p), nil
}

// parse drives an ArchiveFSM over data, copying at most chunk bytes per read.
func parse(data []byte, chunk int) (*Archive, error) {
	m := NewArchiveFSM(uint64(len(data)))
	for {
		if off, ok := m.WantsRead(); ok {
			space := m.Space()
			n := min(len(space), chunk, len(data)-int(off))
			m.Fill(copy(space, data[off:int(off)+n]))
			continue
		}

		archive, err := m.Process()
		if err != nil || archive != nil {
			return archive, err
		}
	}
}

// extract drives an EntryFSM over data, copying at most chunk bytes per read.
func extract(data []byte, e Entry, chunk int) ([]byte, error) {
	m := NewEntryFSM(e)
	out := make([]byte, 0, e.UncompressedSize)
	for {
		if m.WantsRead() {
			off, space := int(m.Offset()), m.Space()
			n := min(len(space), chunk, max(len(data)-off, 0))
			if n > 0 {
				n = copy(space, data[off:off+n])
			}
			m.Fill(n)
			continue
		}

		o, err := m.Process(out[len(out):cap(out)])
		if err != nil {
			return nil, err
		}

		out = out[:len(out)+o.BytesWritten]
		if o.Done {
			return out, nil
		}
	}
}

func entryByName(archive *Archive, name string) (Entry, bool) {
	for _, e := range archive.Entries {
		if e.Name == name {
			return e, true
		}
	}

	return Entry{}, false
}

func TestArchiveFSM(t *testing.T) {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data := writeZip(t, "hello, world",
		testFile{name: "a/", mode: fs.ModeDir | 0755},
		testFile{name: "a/b.txt", method: Deflate, content: []byte("hello"), modified: modified},
		testFile{name: "a/c.txt", method: Store, content: []byte("world")},
		testFile{name: "link", mode: fs.ModeSymlink | 0777, content: []byte("a/b.txt")},
		testFile{name: "\x82.txt", nonUTF8: true, content: []byte("cp437")},
	)

	for _, chunk := range []int{1, 7, 512, len(data)} {
		archive, err := parse(data, chunk)
		assert.NoErrorf(t, err, "parse(chunk=%d) error = %v", chunk, err)
		if !assert.NotNil(t, archive) {
			continue
		}

		assert.Equalf(t, uint64(len(data)), archive.Size, "chunk=%d", chunk)
		assert.Equalf(t, "hello, world", archive.Comment, "chunk=%d", chunk)

		var names []string
		for _, e := range archive.Entries {
			names = append(names, e.Name)
		}
		assert.Equalf(t, []string{"a/", "a/b.txt", "a/c.txt", "link", "é.txt"}, names, "chunk=%d", chunk)
	}

	archive, err := parse(data, len(data))
	assert.NoError(t, err)

	tests := []struct {
		name   string
		kind   Kind
		method Method
		size   uint64
	}{
		{name: "a/", kind: KindDirectory, method: Store, size: 0},
		{name: "a/b.txt", kind: KindFile, method: Deflate, size: 5},
		{name: "a/c.txt", kind: KindFile, method: Store, size: 5},
		{name: "link", kind: KindSymlink, method: Store, size: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := entryByName(archive, tt.name)
			assert.Truef(t, ok, "entry %s not found", tt.name)
			assert.Equalf(t, tt.kind, e.Kind(), "Kind() of %s", tt.name)
			assert.Equalf(t, tt.method, e.Method, "Method of %s", tt.name)
			assert.Equalf(t, tt.size, e.UncompressedSize, "UncompressedSize of %s", tt.name)
		})
	}

	e, _ := entryByName(archive, "a/b.txt")
	assert.Truef(t, modified.Equal(e.Modified), "Modified = %v, expected %v", e.Modified, modified)
}

func TestArchiveFSM_Empty(t *testing.T) {
	data := writeZip(t, "")

	archive, err := parse(data, len(data))
	assert.NoErrorf(t, err, "parse() error = %v", err)
	assert.Equal(t, 0, len(archive.Entries))
}

func TestArchiveFSM_Zip64(t *testing.T) {
	// archive/zip switches to ZIP64 end records once there are at least 65535 entries.
	files := make([]testFile, uint16max+1)
	for i := range files {
		files[i] = testFile{name: string(rune('a'+i%26)) + "/" + strconv.Itoa(i)}
	}
	data := writeZip(t, "", files...)

	archive, err := parse(data, 64*1024)
	assert.NoErrorf(t, err, "parse() error = %v", err)
	assert.Equal(t, len(files), len(archive.Entries))
	assert.Equal(t, "a/0", archive.Entries[0].Name)
	assert.Equal(t, "p/65535", archive.Entries[uint16max].Name)
}

func TestArchiveFSM_Malformed(t *testing.T) {
	valid := writeZip(t, "", testFile{name: "a.txt", content: []byte("hello")})

	corruptCD := bytes.Clone(valid)
	i := bytes.LastIndex(corruptCD, []byte("PK\x01\x02"))
	copy(corruptCD[i:], "XXXX")

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "too small", data: []byte("PK\x05\x06")},
		{name: "not a zip", data: bytes.Repeat([]byte("not a zip file "), 100)},
		{name: "truncated", data: valid[:len(valid)-10]},
		{name: "corrupt central directory", data: corruptCD},
		{name: "central directory cut off", data: valid[len(valid)-eocdLen:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.data, 1024)
			assert.ErrorIsf(t, err, ErrFormat, "parse(%s) error = %v", tt.name, err)
		})
	}
}

func TestEntryFSM(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 1000)

	tests := []struct {
		name    string
		method  Method
		content []byte
	}{
		{name: "store", method: Store, content: content},
		{name: "deflate", method: Deflate, content: content},
		{name: "bzip2", method: Bzip2, content: content},
		{name: "lzma", method: LZMA, content: content},
		{name: "zstd", method: Zstd, content: content},
		{name: "xz", method: XZ, content: content},
		{name: "empty deflate", method: Deflate, content: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := writeZip(t, "",
				testFile{name: "before.txt", method: Deflate, content: []byte("before")},
				testFile{name: tt.name, method: tt.method, content: tt.content},
				testFile{name: "after.txt", method: Deflate, content: []byte("after")},
			)

			archive, err := parse(data, len(data))
			assert.NoErrorf(t, err, "parse() error = %v", err)

			e, ok := entryByName(archive, tt.name)
			assert.True(t, ok)

			for _, chunk := range []int{13, 4096, len(data)} {
				got, err := extract(data, e, chunk)
				assert.NoErrorf(t, err, "extract(chunk=%d) error = %v", chunk, err)
				assert.Truef(t, bytes.Equal(tt.content, got), "extract(chunk=%d) content mismatch", chunk)
			}
		})
	}
}

func TestEntryFSM_Errors(t *testing.T) {
	content := []byte("hello, world")
	data := writeZip(t, "", testFile{name: "a.txt", method: Deflate, content: content})

	archive, err := parse(data, len(data))
	assert.NoErrorf(t, err, "parse() error = %v", err)
	valid := archive.Entries[0]

	tests := []struct {
		name     string
		modify   func(e *Entry)
		data     []byte
		expected error
	}{
		{
			name:     "checksum",
			modify:   func(e *Entry) { e.CRC32 ^= 1 },
			expected: ErrChecksum,
		},
		{
			name:     "encrypted",
			modify:   func(e *Entry) { e.Flags |= flagEncrypted },
			expected: ErrEncrypted,
		},
		{
			name:     "unsupported method",
			modify:   func(e *Entry) { e.Method = 99 },
			expected: ErrUnsupportedMethod,
		},
		{
			name:     "content exceeds declared size",
			modify:   func(e *Entry) { e.UncompressedSize-- },
			expected: ErrFormat,
		},
		{
			name:     "bad local header",
			modify:   func(e *Entry) { e.HeaderOffset++ },
			expected: ErrFormat,
		},
		{
			name:     "truncated",
			modify:   func(e *Entry) {},
			data:     data[:40],
			expected: ErrUnexpectedEOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.modify(&e)

			src := data
			if tt.data != nil {
				src = tt.data
			}

			_, err := extract(src, e, 4096)
			assert.ErrorIsf(t, err, tt.expected, "extract() error = %v", err)
		})
	}
}

func TestEntryFSM_ShorterThanDeclared(t *testing.T) {
	content := []byte("hello, world")
	data := writeZip(t, "", testFile{name: "a.txt", method: Deflate, content: content})

	archive, err := parse(data, len(data))
	assert.NoErrorf(t, err, "parse() error = %v", err)

	e := archive.Entries[0]
	e.UncompressedSize += 10

	// the machine reports completion at the end of the stream; detecting the short write is the caller's job.
	got, err := extract(data, e, 4096)
	assert.NoErrorf(t, err, "extract() error = %v", err)
	assert.Equal(t, content, got)
}
