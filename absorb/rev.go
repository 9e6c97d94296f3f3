package absorb

// Virtual revision arithmetic. A single float64 revision number carries
// both a stack position (the integer part) and an absorb edit id (the
// fractional part, in units of 1/2^20). This keeps one linelog checkout
// space for the physical revisions and every uncommitted absorb edit.

import (
	"math"

	"github.com/pkg/errors"

	"github.com/rcowham/gitabsorb/linelog"
)

// Rev is the virtual revision number used by the absorb engine.
type Rev = linelog.Rev

// AbsorbEditId identifies a single absorb edit within one analysis.
type AbsorbEditId int

const (
	// absorbUnit is the fractional step between successive absorb edit
	// ids embedded into a revision number.
	absorbUnit = 1.0 / (1 << 20)
	// maxAbsorbId is never assigned to a chunk: embedding it would give
	// rev+1, the next integer revision. The highest assignable id lands
	// at rev+1-U, the "rev plus all of its absorb edits" checkout.
	maxAbsorbId = 1<<20 - 1
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnsupported     = errors.New("unsupported diff shape")
)

// EmbedAbsorbId encodes an absorb edit id into the fractional part of an
// integer revision: rev + (id+1)/2^20.
func EmbedAbsorbId(rev Rev, id AbsorbEditId) (Rev, error) {
	if rev < 0 || math.Floor(float64(rev)) != float64(rev) {
		return 0, errors.Wrapf(ErrInvalidArgument,
			"embed base %v is not a non-negative integer", float64(rev))
	}
	if id < 0 || id >= maxAbsorbId {
		return 0, errors.Wrapf(ErrInvalidArgument, "absorb id %d out of range", id)
	}
	return rev + Rev(float64(id+1)*absorbUnit), nil
}

// ExtractRevAbsorbId splits a virtual revision into its integer revision
// and the embedded absorb edit id.
func ExtractRevAbsorbId(rev Rev) (Rev, AbsorbEditId, error) {
	base := math.Floor(float64(rev))
	scaled := (float64(rev) - base) * (1 << 20)
	if scaled != math.Round(scaled) {
		return 0, 0, errors.Wrapf(ErrInvalidArgument,
			"rev %v does not carry an absorb id", float64(rev))
	}
	id := AbsorbEditId(scaled) - 1
	if id < 0 {
		return 0, 0, errors.Wrapf(ErrInvalidArgument,
			"rev %v has no embedded absorb id", float64(rev))
	}
	return Rev(base), id, nil
}

// RevWithAbsorb returns the virtual revision holding rev's content plus
// every absorb edit currently assigned to rev.
func RevWithAbsorb(rev Rev) Rev {
	return Rev(math.Floor(float64(rev))) + 1 - absorbUnit
}
