package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealed(t *testing.T, inner ObjectStore, compress bool) *Sealed {
	t.Helper()
	s, err := NewSealed(inner, compress)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSealed_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		inner := NewMemoryStore()
		s := newTestSealed(t, inner, compress)
		ctx := context.Background()

		payload := bytes.Repeat([]byte("is-a edge "), 200)
		require.NoError(t, s.Put(ctx, "obj", payload))

		got, ok, err := s.Get(ctx, "obj")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, payload, got)

		raw, _, _ := inner.Get(ctx, "obj")
		if compress {
			assert.Less(t, len(raw), len(payload), "repetitive payload compresses")
		} else {
			assert.Equal(t, headerSize+len(payload), len(raw))
		}
	}
}

func TestSealed_ReadsEitherEncoding(t *testing.T) {
	inner := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, newTestSealed(t, inner, true).Put(ctx, "obj", []byte("hello")))

	got, ok, err := newTestSealed(t, inner, false).Get(ctx, "obj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
}

func TestSealed_DetectsCorruption(t *testing.T) {
	inner := NewMemoryStore()
	s := newTestSealed(t, inner, false)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "obj", []byte("payload")))
	raw, _, _ := inner.Get(ctx, "obj")
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, inner.Put(ctx, "obj", raw))

	_, _, err := s.Get(ctx, "obj")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))

	err = s.Scan(ctx, "", func(string, []byte) error { return nil })
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestSealed_RejectsForeignBlobs(t *testing.T) {
	s := newTestSealed(t, NewMemoryStore(), false)

	_, err := s.Open([]byte("short"))
	assert.Error(t, err)

	_, err = s.Open(bytes.Repeat([]byte{'x'}, headerSize+1))
	assert.Error(t, err)
}

func TestSealed_AbsentKey(t *testing.T) {
	s := newTestSealed(t, NewMemoryStore(), true)

	v, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}
