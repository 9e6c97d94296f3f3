package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcowham/gitabsorb/linelog"
)

func TestPlainStack(t *testing.T) {
	texts := []string{"a\n", "a\nb\n", "a\nb\nc\n"}
	s := New(texts)
	assert.Equal(t, 3, s.RevLength())
	for i, want := range texts {
		got, err := s.GetRev(i)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := s.GetRev(3)
	assert.ErrorIs(t, err, ErrRevOutOfRange)
	_, err = s.GetRev(-1)
	assert.ErrorIs(t, err, ErrRevOutOfRange)
}

func TestNewCopiesInput(t *testing.T) {
	texts := []string{"a\n"}
	s := New(texts)
	texts[0] = "changed\n"
	got, err := s.GetRev(0)
	assert.NoError(t, err)
	assert.Equal(t, "a\n", got)
}

func TestLineLogRoundTrip(t *testing.T) {
	texts := []string{"a\nb\n", "a\nB\n", "a\nB\nc\n"}
	s := New(texts)
	log, err := s.ToLineLog()
	assert.NoError(t, err)
	back := FromLineLog(log, 3)
	got, err := back.Texts()
	assert.NoError(t, err)
	assert.Equal(t, texts, got)
}

func TestToLineLogIsCallerOwned(t *testing.T) {
	s := New([]string{"a\n"})
	log, err := s.ToLineLog()
	assert.NoError(t, err)
	assert.NoError(t, log.EditChunk(0, 0, 1, 1, []string{"A\n"}))
	// The stack is unaffected by edits to the returned log.
	log2, err := s.ToLineLog()
	assert.NoError(t, err)
	text, err := log2.CheckOut(1)
	assert.NoError(t, err)
	assert.Equal(t, "a\n", text)
}

func TestCheckOutFractional(t *testing.T) {
	s := New([]string{"a\n", "a\nb\n"})
	log, err := s.ToLineLog()
	assert.NoError(t, err)
	assert.NoError(t, log.EditChunk(1, 1, 2, 1.5, []string{"B\n"}))
	backed := FromLineLog(log, 2)
	text, err := backed.CheckOut(1.5)
	assert.NoError(t, err)
	assert.Equal(t, "a\nB\n", text)
	text, err = backed.GetRev(1)
	assert.NoError(t, err)
	assert.Equal(t, "a\nb\n", text)
}

func TestTruncate(t *testing.T) {
	s := New([]string{"a\n", "a\nb\n", "a\nb\nc\n"})
	short, err := s.Truncate(2)
	assert.NoError(t, err)
	assert.Equal(t, 2, short.RevLength())
	got, err := short.Texts()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a\n", "a\nb\n"}, got)
	assert.Equal(t, 3, s.RevLength())

	_, err = s.Truncate(4)
	assert.ErrorIs(t, err, ErrRevOutOfRange)
}

func TestEmptyStack(t *testing.T) {
	s := New(nil)
	assert.Equal(t, 0, s.RevLength())
	log, err := s.ToLineLog()
	assert.NoError(t, err)
	assert.Equal(t, linelog.Rev(0), log.MaxRev())
}
