package fsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Decompressor returns a reader that decompresses the content of an entry from r.
//
// flags is the entry's general purpose bit flag and uncompressedSize its declared uncompressed size; most methods
// ignore both.
type Decompressor func(r io.Reader, flags uint16, uncompressedSize uint64) (io.ReadCloser, error)

var decompressors sync.Map // map[Method]Decompressor

func init() {
	decompressors.Store(Store, Decompressor(func(r io.Reader, _ uint16, _ uint64) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}))
	decompressors.Store(Deflate, Decompressor(newFlateReader))
	decompressors.Store(Bzip2, Decompressor(newBzip2Reader))
	decompressors.Store(LZMA, Decompressor(newLZMAReader))
	decompressors.Store(Zstd, Decompressor(newZstdReader))
	decompressors.Store(ZstdDeprecated, Decompressor(newZstdReader))
	decompressors.Store(XZ, Decompressor(newXZReader))
}

// RegisterDecompressor registers or overrides the decompressor for the given method.
func RegisterDecompressor(method Method, dcomp Decompressor) {
	decompressors.Store(method, dcomp)
}

func decompressor(method Method) Decompressor {
	if v, ok := decompressors.Load(method); ok {
		return v.(Decompressor)
	}

	return nil
}

// Supported reports whether a decompressor is registered for the given method.
func Supported(method Method) bool {
	return decompressor(method) != nil
}

func newFlateReader(r io.Reader, _ uint16, _ uint64) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

func newBzip2Reader(r io.Reader, _ uint16, _ uint64) (io.ReadCloser, error) {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("create bzip2 reader error: %w", err)
	}

	return br, nil
}

// newLZMAReader decodes the zip flavour of LZMA.
//
// The zip flavour prefixes the stream with a 2-byte version and a 2-byte properties length followed by the 5-byte
// properties, while the classic LZMA header expected by lzma.NewReader carries the properties followed by the 8-byte
// uncompressed size. If the EOS marker flag is set the size is recorded as unknown.
func newLZMAReader(r io.Reader, flags uint16, uncompressedSize uint64) (io.ReadCloser, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("read LZMA header error: %w", err)
	}

	propsLen := int(binary.LittleEndian.Uint16(hdr[2:]))
	if propsLen != 5 {
		return nil, fmt.Errorf("unexpected LZMA properties length: %d", propsLen)
	}

	classic := make([]byte, 13)
	if _, err := io.ReadFull(r, classic[:5]); err != nil {
		return nil, fmt.Errorf("read LZMA properties error: %w", err)
	}

	size := uncompressedSize
	if flags&flagLZMAEOS != 0 {
		size = 1<<64 - 1
	}
	binary.LittleEndian.PutUint64(classic[5:], size)

	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(classic), r))
	if err != nil {
		return nil, fmt.Errorf("create LZMA reader error: %w", err)
	}

	return io.NopCloser(lr), nil
}

func newZstdReader(r io.Reader, _ uint16, _ uint64) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd reader error: %w", err)
	}

	return &zstdDecoder{Decoder: d}, nil
}

type zstdDecoder struct {
	*zstd.Decoder
}

// Close adapts zstd.Decoder.Close which doesn't return error.
func (z *zstdDecoder) Close() error {
	z.Decoder.Close()
	return nil
}

func newXZReader(r io.Reader, _ uint16, _ uint64) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create xz reader error: %w", err)
	}

	return io.NopCloser(xr), nil
}
