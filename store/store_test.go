package store

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		s      string
		valid  bool
		parent Prefix
	}{
		{s: "a", valid: true, parent: Root},
		{s: "a/b/c", valid: true, parent: "a/b/"},
		{s: "a//b", valid: true, parent: "a//"},
		{s: ""},
		{s: "/a"},
		{s: "a/"},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			k, err := NewKey(tt.s)
			if !tt.valid {
				assert.ErrorIsf(t, err, ErrInvalidKey, "NewKey(%q) error = %v", tt.s, err)
				return
			}

			assert.NoErrorf(t, err, "NewKey(%q) error = %v", tt.s, err)
			assert.Equal(t, tt.parent, k.Parent())
			assert.True(t, k.HasPrefix(k.Parent()))
		})
	}
}

func TestPrefix(t *testing.T) {
	for s, valid := range map[string]bool{
		"":     true,
		"a/":   true,
		"a/b/": true,
		"a":    false,
		"/a/":  false,
		"/":    false,
	} {
		_, err := NewPrefix(s)
		if valid {
			assert.NoErrorf(t, err, "NewPrefix(%q) error = %v", s, err)
		} else {
			assert.ErrorIsf(t, err, ErrInvalidPrefix, "NewPrefix(%q) error = %v", s, err)
		}
	}
}

func TestByteRange(t *testing.T) {
	tests := []struct {
		name         string
		r            ByteRange
		size         uint64
		start, end   uint64
		length       uint64
		valid        bool
		httpRange    string
		stringResult string
	}{
		{name: "from start", r: FromStart(2, 3), size: 10, start: 2, end: 5, length: 3, valid: true, httpRange: "bytes=2-4", stringResult: "2..5"},
		{name: "from start to end", r: FromStart(0, 10), size: 10, start: 0, end: 10, length: 10, valid: true, httpRange: "bytes=0-9", stringResult: "0..10"},
		{name: "from start past end", r: FromStart(8, 3), size: 10, start: 8, end: 11, length: 3, httpRange: "bytes=8-10", stringResult: "8..11"},
		{name: "from start empty at end", r: FromStart(10, 0), size: 10, start: 10, end: 10, length: 0, valid: true, stringResult: "10..10"},
		{name: "from offset", r: FromOffset(4), size: 10, start: 4, end: 10, length: 6, valid: true, httpRange: "bytes=4-", stringResult: "4.."},
		{name: "from offset at end", r: FromOffset(10), size: 10, start: 10, end: 10, length: 0, valid: true, httpRange: "bytes=10-", stringResult: "10.."},
		{name: "from offset past end", r: FromOffset(11), size: 10, start: 11, end: 10, length: 0, httpRange: "bytes=11-", stringResult: "11.."},
		{name: "suffix", r: Suffix(3), size: 10, start: 7, end: 10, length: 3, valid: true, httpRange: "bytes=-3", stringResult: "-3"},
		{name: "suffix of entire value", r: Suffix(10), size: 10, start: 0, end: 10, length: 10, valid: true, httpRange: "bytes=-10", stringResult: "-10"},
		{name: "suffix longer than value", r: Suffix(11), size: 10, start: 0, end: 10, length: 10, valid: true, httpRange: "bytes=-11", stringResult: "-11"},
		{name: "empty suffix", r: Suffix(0), size: 10, start: 10, end: 10, length: 0, valid: true, stringResult: "-0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.start, tt.r.Start(tt.size), "Start(%d)", tt.size)
			assert.Equalf(t, tt.end, tt.r.End(tt.size), "End(%d)", tt.size)
			assert.Equalf(t, tt.length, tt.r.Length(tt.size), "Length(%d)", tt.size)
			assert.Equal(t, tt.httpRange, tt.r.HTTPRange())
			assert.Equal(t, tt.stringResult, tt.r.String())

			err := tt.r.Validate(tt.size)
			if tt.valid {
				assert.NoErrorf(t, err, "Validate(%d) error = %v", tt.size, err)
				return
			}

			var rangeErr *InvalidByteRangeError
			if assert.ErrorAsf(t, err, &rangeErr, "Validate(%d) error = %v", tt.size, err) {
				assert.Equal(t, tt.r, rangeErr.Range)
				assert.Equal(t, tt.size, rangeErr.Size)
			}
		})
	}
}

func TestByteRange_Overflow(t *testing.T) {
	r := FromStart(math.MaxUint64, 2)
	assert.Equal(t, uint64(math.MaxUint64), r.End(10))

	var rangeErr *InvalidByteRangeError
	assert.ErrorAs(t, r.Validate(math.MaxUint64), &rangeErr)
}

func TestSlice(t *testing.T) {
	data := []byte("0123456789")

	bufs, err := Slice(data, []ByteRange{FromStart(0, 2), FromOffset(8), Suffix(1), FromStart(10, 0)})
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("01"), []byte("89"), []byte("9"), {}}, bufs)

	// results are copies.
	bufs[0][0] = 'x'
	assert.Equal(t, byte('0'), data[0])

	bufs, err = Slice(data, []ByteRange{FromStart(0, 2), FromStart(9, 2)})
	assert.Error(t, err)
	assert.Nil(t, bufs)
}

func TestLazy(t *testing.T) {
	var calls int
	seq := Lazy([]ByteRange{FromStart(0, 1), FromStart(1, 1), FromStart(2, 1)}, func(r ByteRange) ([]byte, error) {
		calls++
		if r.Offset() == 1 {
			return nil, errors.New("boom")
		}
		return []byte{byte(r.Offset())}, nil
	})
	assert.Equal(t, 0, calls)

	bufs, err := Collect(seq)
	assert.EqualError(t, err, "boom")
	assert.Nil(t, bufs)
	assert.Equal(t, 2, calls)
}

type fixedStore struct {
	data []byte
}

func (s fixedStore) GetPartial(_ context.Context, key Key, r ByteRange) ([]byte, bool, error) {
	if key != "k" {
		return nil, false, nil
	}

	bufs, err := Slice(s.data, []ByteRange{r})
	if err != nil {
		return nil, true, err
	}
	return bufs[0], true, nil
}

func (s fixedStore) GetPartialMany(_ context.Context, key Key, ranges []ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	if key != "k" {
		return nil, false, nil
	}

	bufs, err := Slice(s.data, ranges)
	return Values(bufs), true, err
}

func (s fixedStore) SizeOf(_ context.Context, key Key) (uint64, bool, error) {
	return uint64(len(s.data)), key == "k", nil
}

func TestAsyncOf(t *testing.T) {
	ctx := context.Background()
	s := AsyncOf(fixedStore{data: []byte("hello")})

	data, ok, err := Await(ctx, s.GetPartialAsync(ctx, "k", FromOffset(1)))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("ello"), data)

	_, ok, err = Await(ctx, s.GetPartialAsync(ctx, "missing", FromOffset(1)))
	assert.NoError(t, err)
	assert.False(t, ok)

	bufs, ok, err := Await(ctx, s.GetPartialManyAsync(ctx, "k", []ByteRange{Suffix(1), FromStart(0, 1)}))
	assert.NoError(t, err)
	assert.True(t, ok)
	got, err := Collect(bufs)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("o"), []byte("h")}, got)

	size, ok, err := Await(ctx, s.SizeOfAsync(ctx, "k"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), size)

	// stores that are already asynchronous are returned as-is.
	both := &bothStore{fixedStore: fixedStore{data: []byte("hello")}}
	assert.Same(t, both, AsyncOf(both))
}

type bothStore struct {
	fixedStore
	asyncStore
}

func TestAwait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok, err := Await(ctx, make(chan Result[[]byte]))
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	v, ok, err := Await(context.Background(), Resolved(42, true, nil))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}
