package stack

// FileStackState - an immutable ordered sequence of text revisions of a
// single file. Element 0 is the public base (never edited), the final
// element is the working directory content. A state is either plain
// (a slice of texts) or backed by a linelog, in which case fractional
// revisions can be checked out. No operation mutates the receiver.

import (
	"github.com/pkg/errors"

	"github.com/rcowham/gitabsorb/linelog"
)

var ErrRevOutOfRange = errors.New("revision out of range")

type FileStackState struct {
	texts     []string         // set for plain states
	log       *linelog.LineLog // set for linelog-backed states
	revLength int
}

// New returns a plain state holding a copy of texts.
func New(texts []string) *FileStackState {
	copied := make([]string, len(texts))
	copy(copied, texts)
	return &FileStackState{texts: copied, revLength: len(copied)}
}

// FromLineLog returns a state backed by a copy of log, exposing revLength
// integer revisions.
func FromLineLog(log *linelog.LineLog, revLength int) *FileStackState {
	return &FileStackState{log: log.Clone(), revLength: revLength}
}

// RevLength returns the number of revisions in the stack.
func (s *FileStackState) RevLength() int {
	return s.revLength
}

// GetRev returns the text of integer revision i.
func (s *FileStackState) GetRev(i int) (string, error) {
	if i < 0 || i >= s.revLength {
		return "", errors.Wrapf(ErrRevOutOfRange, "rev %d of %d", i, s.revLength)
	}
	if s.texts != nil {
		return s.texts[i], nil
	}
	return s.log.CheckOut(linelog.Rev(i))
}

// CheckOut returns the text at rev, which may be fractional.
func (s *FileStackState) CheckOut(rev linelog.Rev) (string, error) {
	if s.log != nil {
		return s.log.CheckOut(rev)
	}
	log, err := s.ToLineLog()
	if err != nil {
		return "", err
	}
	return log.CheckOut(rev)
}

// ToLineLog converts the stack to a linelog, recording revision i at rev
// i. The result is caller-owned; editing it does not affect the stack.
func (s *FileStackState) ToLineLog() (*linelog.LineLog, error) {
	if s.log != nil {
		return s.log.Clone(), nil
	}
	log := linelog.New()
	for i, text := range s.texts {
		if err := log.RecordText(linelog.Rev(i), text); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// Texts materializes every revision.
func (s *FileStackState) Texts() ([]string, error) {
	texts := make([]string, s.revLength)
	for i := range texts {
		t, err := s.GetRev(i)
		if err != nil {
			return nil, err
		}
		texts[i] = t
	}
	return texts, nil
}

// Truncate returns a new state holding the first n revisions.
func (s *FileStackState) Truncate(n int) (*FileStackState, error) {
	if n < 0 || n > s.revLength {
		return nil, errors.Wrapf(ErrRevOutOfRange, "truncate to %d of %d", n, s.revLength)
	}
	if s.texts != nil {
		return New(s.texts[:n]), nil
	}
	texts := make([]string, n)
	for i := range texts {
		t, err := s.GetRev(i)
		if err != nil {
			return nil, err
		}
		texts[i] = t
	}
	return New(texts), nil
}
