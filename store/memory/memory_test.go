package memory

import (
	"context"
	"testing"

	"github.com/nguyengg/zipstore/store"
	"github.com/stretchr/testify/assert"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	value := []byte("hello")
	s.Set("a/b.txt", value)
	s.Set("a/c/d.txt", []byte("world"))
	s.Set("e.txt", []byte("!"))

	// values are copied on the way in.
	value[0] = 'j'

	data, ok, err := store.Get(ctx, s, "a/b.txt")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	// and on the way out.
	data[0] = 'j'
	data, _, _ = store.Get(ctx, s, "a/b.txt")
	assert.Equal(t, []byte("hello"), data)

	bufs, ok, err := s.GetPartialMany(ctx, "a/c/d.txt", []store.ByteRange{store.FromStart(1, 2), store.Suffix(1)})
	assert.NoError(t, err)
	assert.True(t, ok)
	got, err := store.Collect(bufs)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("or"), []byte("d")}, got)

	_, ok, err = s.GetPartial(ctx, "a/b.txt", store.FromStart(0, 6))
	assert.True(t, ok)
	var rangeErr *store.InvalidByteRangeError
	assert.ErrorAs(t, err, &rangeErr)

	keys, err := s.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []store.Key{"a/b.txt", "a/c/d.txt", "e.txt"}, keys)

	keys, err = s.ListPrefix(ctx, "a/")
	assert.NoError(t, err)
	assert.Equal(t, []store.Key{"a/b.txt", "a/c/d.txt"}, keys)

	list, err := s.ListDir(ctx, store.Root)
	assert.NoError(t, err)
	assert.Equal(t, store.KeysPrefixes{Keys: []store.Key{"e.txt"}, Prefixes: []store.Prefix{"a/"}}, list)

	list, err = s.ListDir(ctx, "a/")
	assert.NoError(t, err)
	assert.Equal(t, store.KeysPrefixes{Keys: []store.Key{"a/b.txt"}, Prefixes: []store.Prefix{"a/c/"}}, list)

	size, err := s.Size(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(11), size)

	size, err = s.SizePrefix(ctx, "a/")
	assert.NoError(t, err)
	assert.Equal(t, uint64(10), size)

	s.Erase("a/b.txt")
	_, ok, err = s.SizeOf(ctx, "a/b.txt")
	assert.NoError(t, err)
	assert.False(t, ok)
}
