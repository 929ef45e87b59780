package providers

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragments(frags ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func TestCollect(t *testing.T) {
	text, err := Collect(fragments("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "abc", text)

	boom := errors.New("boom")
	seq := func(yield func(string, error) bool) {
		if !yield("partial", nil) {
			return
		}
		yield("", boom)
	}
	text, err = Collect(seq)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", text)
}

func TestFromText(t *testing.T) {
	text, err := Collect(FromText("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	n := 0
	for range FromText("") {
		n++
	}
	assert.Zero(t, n)
}

func TestPrimeStream_ReplaysFirstFragment(t *testing.T) {
	seq, err := primeStream(fragments("one ", "two"))
	require.NoError(t, err)
	text, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, "one two", text)
}

func TestPrimeStream_EarlyError(t *testing.T) {
	boom := errors.New("boom")
	seq, err := primeStream(fromError(boom))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, seq)
}

func TestPrimeStream_Empty(t *testing.T) {
	seq, err := primeStream(fragments())
	require.NoError(t, err)
	text, err := Collect(seq)
	require.NoError(t, err)
	assert.Empty(t, text)
}
