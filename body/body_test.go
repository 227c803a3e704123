package body

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyYieldsNoChunks(t *testing.T) {
	_, err := (Empty{}).NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestInMemoryYieldsOneChunkThenEOF(t *testing.T) {
	b := NewInMemory([]byte("hello"))
	chunk, err := b.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), chunk)

	_, err = b.NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestInMemoryEmptyIsImmediateEOF(t *testing.T) {
	b := NewInMemory(nil)
	_, err := b.NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFormEncodesWithTrailingAmpersand(t *testing.T) {
	b := NewForm([]KV{{Key: "a", Value: "1"}, {Key: "b c", Value: "2 3"}})
	chunk, err := b.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a=1&b+c=2+3&", string(chunk))

	_, err = b.NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestPullStreamDrainsUntilHostSignalsEnd(t *testing.T) {
	chunks := [][]byte{[]byte("one"), []byte("two")}
	i := 0
	b := NewPullStream(func(ctx context.Context) ([]byte, bool, error) {
		if i >= len(chunks) {
			return nil, false, nil
		}
		c := chunks[i]
		i++
		return c, true, nil
	})

	got, err := b.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	got, err = b.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	_, err = b.NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestPullStreamHostErrorIsFatal(t *testing.T) {
	b := NewPullStream(func(ctx context.Context) ([]byte, bool, error) {
		return nil, false, errors.New("boom")
	})
	_, err := b.NextFrame(context.Background())
	require.Error(t, err)

	// Any further call after an error also ends the stream.
	_, err = b.NextFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
