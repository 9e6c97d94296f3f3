package absorb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcowham/gitabsorb/stack"
)

func analyse(t *testing.T, texts []string, newText string) (*stack.FileStackState, []*DiffChunk) {
	fs := stack.New(texts)
	chunks, err := AnalyseFileStack(fs, newText)
	assert.NoError(t, err)
	return fs, chunks
}

func applied(t *testing.T, fs *stack.FileStackState, chunks []*DiffChunk) []string {
	out, err := ApplyFileStackEdits(fs, chunks)
	assert.NoError(t, err)
	texts, err := out.Texts()
	assert.NoError(t, err)
	return texts
}

func selectedRev(t *testing.T, c *DiffChunk) Rev {
	if !assert.NotNil(t, c.SelectedRev) {
		return -1
	}
	return *c.SelectedRev
}

func TestSingleBlameLineEdit(t *testing.T) {
	fs, chunks := analyse(t, []string{"a\nb\nc\n", "a\nB\nc\n"}, "a\nBB\nc\n")
	assert.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, Rev(1), c.IntroductionRev)
	assert.Equal(t, Rev(1), selectedRev(t, c))
	assert.Equal(t, []string{"B\n"}, c.OldLines)
	assert.Equal(t, []string{"BB\n"}, c.NewLines)

	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"a\nb\nc\n", "a\nBB\nc\n"}, texts)
}

func TestInsertionNextToPublicNeighbour(t *testing.T) {
	fs, chunks := analyse(t, []string{"x\ny\n", "x\nY\n"}, "x\nY\nZ\n")
	assert.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, Rev(1), c.IntroductionRev)
	assert.Equal(t, Rev(1), selectedRev(t, c))

	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"x\ny\n", "x\nY\nZ\n"}, texts)
}

func TestDeletionSpanningBlames(t *testing.T) {
	fs, chunks := analyse(t,
		[]string{"a\nb\n", "a\nb\nc\n", "a\nb\nc\nd\n"}, "a\n")
	assert.Len(t, chunks, 3)
	assert.Equal(t, []string{"b\n"}, chunks[0].OldLines)
	assert.Equal(t, []string{"c\n"}, chunks[1].OldLines)
	assert.Equal(t, []string{"d\n"}, chunks[2].OldLines)
	assert.Equal(t, Rev(0), selectedRev(t, chunks[0]))
	assert.Equal(t, Rev(1), selectedRev(t, chunks[1]))
	assert.Equal(t, Rev(2), selectedRev(t, chunks[2]))

	// The rev 0 sub-chunk is filtered out by the applier; the others
	// remove their lines from their own revisions onward.
	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"a\nb\n", "a\nb\n", "a\nb\n"}, texts)
}

func TestEqualLengthReplacementMixedBlames(t *testing.T) {
	fs, chunks := analyse(t,
		[]string{"p\nq\n", "P\nq\n", "P\nQ\n"}, "P'\nQ'\n")
	assert.Len(t, chunks, 2)
	assert.Equal(t, Rev(1), selectedRev(t, chunks[0]))
	assert.Equal(t, Rev(2), selectedRev(t, chunks[1]))

	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"p\nq\n", "P'\nq\n", "P'\nQ'\n"}, texts)
}

func TestFallbackUnassigned(t *testing.T) {
	_, chunks := analyse(t, []string{"a\nb\n", "a\nB\n"}, "X\nY\nZ\n")
	assert.Len(t, chunks, 1)
	c := chunks[0]
	assert.Nil(t, c.SelectedRev)
	assert.Equal(t, Rev(1), c.IntroductionRev)
}

func TestEqualLengthPublicRunStaysUnassigned(t *testing.T) {
	// First line blamed to the public rev: its run must come out
	// unassigned while the rev 1 run is absorbed.
	_, chunks := analyse(t, []string{"a\nb\n", "a\nB\n"}, "A\nB'\n")
	assert.Len(t, chunks, 2)
	assert.Nil(t, chunks[0].SelectedRev)
	assert.Equal(t, Rev(0), chunks[0].IntroductionRev)
	assert.Equal(t, Rev(1), selectedRev(t, chunks[1]))
}

func TestAnalyseEmptyStack(t *testing.T) {
	fs := stack.New(nil)
	_, err := AnalyseFileStack(fs, "a\n")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAnalyseNoChanges(t *testing.T) {
	fs, chunks := analyse(t, []string{"a\nb\nc\n", "a\nB\nc\n"}, "a\nB\nc\n")
	assert.Empty(t, chunks)

	// Trivial input: apply returns the stack unchanged.
	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"a\nb\nc\n", "a\nB\nc\n"}, texts)
}

func TestChunkOrderingAndCoverage(t *testing.T) {
	oldText := "one\ntwo\nthree\nfour\nfive\n"
	newText := "one\nTWO\nthree\nfour\nfive\nsix\n"
	_, chunks := analyse(t,
		[]string{"one\ntwo\nthree\nfour\n", oldText}, newText)
	assert.NotEmpty(t, chunks)

	oldLines := strings.SplitAfter(oldText, "\n")
	oldLines = oldLines[:len(oldLines)-1]
	newLines := strings.SplitAfter(newText, "\n")
	newLines = newLines[:len(newLines)-1]

	// Ordering: non-decreasing on both sides.
	prevOld, prevNew := 0, 0
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.OldStart, prevOld)
		assert.GreaterOrEqual(t, c.NewStart, prevNew)
		prevOld, prevNew = c.OldStart, c.NewStart
	}

	// Coverage: gaps plus chunk contents reconstruct both texts.
	var oldSb, newSb strings.Builder
	prevA, prevB := 0, 0
	for _, c := range chunks {
		oldSb.WriteString(strings.Join(oldLines[prevA:c.OldStart], ""))
		oldSb.WriteString(strings.Join(c.OldLines, ""))
		newSb.WriteString(strings.Join(newLines[prevB:c.NewStart], ""))
		newSb.WriteString(strings.Join(c.NewLines, ""))
		prevA, prevB = c.OldEnd, c.NewEnd
	}
	oldSb.WriteString(strings.Join(oldLines[prevA:], ""))
	newSb.WriteString(strings.Join(newLines[prevB:], ""))
	assert.Equal(t, oldText, oldSb.String())
	assert.Equal(t, newText, newSb.String())
}

func TestDestinationValidity(t *testing.T) {
	scenarios := [][]string{
		{"a\nb\nc\n", "a\nB\nc\n"},
		{"p\nq\n", "P\nq\n", "P\nQ\n"},
		{"x\ny\n", "x\nY\n"},
	}
	newTexts := []string{"a\nBB\nc\n", "P'\nQ'\n", "x\nY\nZ\n"}
	for i, texts := range scenarios {
		_, chunks := analyse(t, texts, newTexts[i])
		for _, c := range chunks {
			if c.SelectedRev == nil {
				continue
			}
			assert.GreaterOrEqual(t, float64(*c.SelectedRev), float64(c.IntroductionRev))
			assert.GreaterOrEqual(t, float64(*c.SelectedRev), 1.0)
		}
	}
}

func TestApplyRejectsRetargetBeforeIntroduction(t *testing.T) {
	fs, chunks := analyse(t,
		[]string{"p\nq\n", "P\nq\n", "P\nQ\n"}, "P'\nQ'\n")
	assert.Len(t, chunks, 2)
	// Re-target the rev 2 chunk to rev 1, before its introduction.
	bad := Rev(1)
	chunks[1].SelectedRev = &bad
	_, err := ApplyFileStackEdits(fs, chunks)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestApplyRetargetToLaterRev(t *testing.T) {
	fs, chunks := analyse(t, []string{"a\nb\nc\n", "a\nB\nc\n", "a\nB\nc\n"}, "a\nBB\nc\n")
	assert.Len(t, chunks, 1)
	// The user defers the chunk to rev 2 instead of rev 1.
	later := Rev(2)
	chunks[0].SelectedRev = &later
	texts := applied(t, fs, chunks)
	assert.Equal(t, []string{"a\nb\nc\n", "a\nB\nc\n", "a\nBB\nc\n"}, texts)
}

func TestTopRevReproduction(t *testing.T) {
	fs, chunks := analyse(t,
		[]string{"p\nq\n", "P\nq\n", "P\nQ\n"}, "P'\nQ'\n")
	out, err := ApplyFileStackEdits(fs, chunks)
	assert.NoError(t, err)
	top, err := out.GetRev(out.RevLength() - 1)
	assert.NoError(t, err)
	assert.Equal(t, "P'\nQ'\n", top)
	// The public base never changes.
	base, err := out.GetRev(0)
	assert.NoError(t, err)
	assert.Equal(t, "p\nq\n", base)
}

func TestCalculateAbsorbEdits(t *testing.T) {
	fs := stack.New([]string{"a\nb\nc\n", "a\nB\nc\n", "a\nBB\nc\n"})
	out, byId, err := CalculateAbsorbEditsForFileStack(fs)
	assert.NoError(t, err)
	assert.Len(t, byId, 1)
	assert.Equal(t, AbsorbEditId(0), byId[0].AbsorbEditId)

	// Rev 1 with its absorb edits carries the new content; the plain
	// rev 1 checkout still shows the original text.
	text, err := out.CheckOut(RevWithAbsorb(1))
	assert.NoError(t, err)
	assert.Equal(t, "a\nBB\nc\n", text)
	text, err = out.CheckOut(Rev(1))
	assert.NoError(t, err)
	assert.Equal(t, "a\nB\nc\n", text)

	// The wdir revision is still in place.
	assert.Equal(t, 3, out.RevLength())
	wdir, err := out.GetRev(2)
	assert.NoError(t, err)
	assert.Equal(t, "a\nBB\nc\n", wdir)
}

func TestCalculateAbsorbEditsUnassignedStaysPending(t *testing.T) {
	// The uneven replacement cannot be absorbed; it must stay at the
	// wdir revision so earlier revisions are untouched.
	fs := stack.New([]string{"a\nb\n", "a\nB\n", "X\nY\nZ\n"})
	out, byId, err := CalculateAbsorbEditsForFileStack(fs)
	assert.NoError(t, err)
	assert.Len(t, byId, 1)
	assert.Nil(t, byId[0].SelectedRev)

	text, err := out.CheckOut(RevWithAbsorb(1))
	assert.NoError(t, err)
	assert.Equal(t, "a\nB\n", text)
	// The pending chunk sits above the integer wdir rev; the canonical
	// wdir view is RevWithAbsorb(wdirRev).
	wdir, err := out.CheckOut(RevWithAbsorb(2))
	assert.NoError(t, err)
	assert.Equal(t, "X\nY\nZ\n", wdir)
}

func TestPreviewMatchesCommittedApply(t *testing.T) {
	texts := []string{"p\nq\n", "P\nq\n", "P\nQ\n", "P'\nQ'\n"}
	fs := stack.New(texts)
	out, byId, err := CalculateAbsorbEditsForFileStack(fs)
	assert.NoError(t, err)
	assert.Len(t, byId, 2)

	truncated, err := fs.Truncate(3)
	assert.NoError(t, err)
	chunks, err := AnalyseFileStack(truncated, "P'\nQ'\n")
	assert.NoError(t, err)
	committed, err := ApplyFileStackEdits(truncated, chunks)
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		want, err := committed.GetRev(i)
		assert.NoError(t, err)
		got, err := out.CheckOut(RevWithAbsorb(Rev(i)))
		assert.NoError(t, err)
		assert.Equal(t, want, got, "rev %d", i)
	}
}

func TestCalculateAbsorbEditsTooShort(t *testing.T) {
	_, _, err := CalculateAbsorbEditsForFileStack(stack.New([]string{"a\n"}))
	assert.ErrorIs(t, err, ErrInvalidState)
}
