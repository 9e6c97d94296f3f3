package absorb

// The absorb engine: given a stack of file revisions and a new top-of-
// stack text, work out which existing revision each changed region
// belongs to, and rewrite the stack so the change lands there.
//
// Analysis fuses a line diff between the stack top and the new text with
// per-line blame from the linelog. Chunks whose provenance is a single
// non-public revision are assigned there; regions spanning several
// revisions are split per blame run; anything else is left unassigned
// for the caller to place.

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/rcowham/gitabsorb/linelog"
	"github.com/rcowham/gitabsorb/stack"
)

// DiffChunk - one contiguous region of the diff between the stack top
// and the new text, classified by the provenance of the lines it
// replaces.
type DiffChunk struct {
	OldStart int      // Half-open line range in the stack top revision
	OldEnd   int
	OldLines []string // The replaced lines, old[OldStart:OldEnd]
	NewStart int      // Half-open line range in the new text
	NewEnd   int
	NewLines []string // The replacement lines, new[NewStart:NewEnd]

	IntroductionRev Rev          // Earliest revision the chunk may land on
	SelectedRev     *Rev         // Destination revision; nil = unassigned
	AbsorbEditId    AbsorbEditId // Stable id, set by the preview applier
}

// AnalyseFileStack computes the absorb chunks for newText against the
// stack's top revision.
func AnalyseFileStack(fs *stack.FileStackState, newText string) ([]*DiffChunk, error) {
	return AnalyseFileStackAt(fs, newText, fs.RevLength()-1)
}

// AnalyseFileStackAt is AnalyseFileStack with an explicit top revision.
func AnalyseFileStackAt(fs *stack.FileStackState, newText string, stackTopRev int) ([]*DiffChunk, error) {
	if fs.RevLength() == 0 {
		return nil, errors.Wrap(ErrInvalidState, "cannot analyse an empty stack")
	}
	if stackTopRev < 0 || stackTopRev >= fs.RevLength() {
		return nil, errors.Wrapf(ErrInvalidArgument, "stack top rev %d of %d", stackTopRev, fs.RevLength())
	}
	log, err := fs.ToLineLog()
	if err != nil {
		return nil, err
	}
	blame, err := log.CheckOutLines(linelog.Rev(stackTopRev))
	if err != nil {
		return nil, err
	}
	oldLines := make([]string, len(blame)-1)
	for i := range oldLines {
		oldLines[i] = blame[i].Data
	}
	newLines := linelog.SplitLines(newText)

	chunks := make([]*DiffChunk, 0)
	emit := func(a1, a2, b1, b2 int, introduction Rev, selected *Rev) {
		chunks = append(chunks, &DiffChunk{
			OldStart:        a1,
			OldEnd:          a2,
			OldLines:        copyLines(oldLines[a1:a2]),
			NewStart:        b1,
			NewEnd:          b2,
			NewLines:        copyLines(newLines[b1:b2]),
			IntroductionRev: introduction,
			SelectedRev:     selected,
		})
	}

	for _, blk := range linelog.DiffLines(oldLines, newLines) {
		a1, a2, b1, b2 := blk.A1, blk.A2, blk.B1, blk.B2
		if a1 == a2 && b1 == b2 {
			return nil, errors.Wrapf(ErrUnsupported, "empty diff block at line %d", a1)
		}
		var involved []Rev
		if a1 == a2 {
			// Pure insertion: provenance comes from the two nearest
			// neighbours. The sentinel entry makes blame[a2] valid even
			// at the end of the file; its rev is 0 and drops out below.
			involved = nonPublicRevs(blame, []int{a2, maxInt(0, a1-1)})
			if len(involved) == 1 {
				r := involved[0]
				emit(a1, a2, b1, b2, r, &r)
				continue
			}
		} else {
			involved = nonPublicRevs(blame, lineRange(a1, a2))
			if r, ok := uniformRev(blame, a1, a2); ok && r > 0 {
				// Every replaced line comes from the same non-public rev.
				emit(a1, a2, b1, b2, r, &r)
				continue
			}
			if b1 == b2 {
				// Pure deletion: one chunk per blame run, keeping rev 0
				// runs selected at rev 0 for the caller to see.
				splitChunk(blame, a1, a2, func(s, e int, r Rev) {
					rr := r
					emit(s, e, b1, b2, r, &rr)
				})
				continue
			}
			if a2-a1 == b2-b1 && anyNonPublic(blame, a1, a2) {
				// Equal length: zip old and new 1:1, split per blame run.
				// Runs blamed to the public rev stay unassigned.
				delta := b1 - a1
				splitChunk(blame, a1, a2, func(s, e int, r Rev) {
					var sel *Rev
					if r > 0 {
						rr := r
						sel = &rr
					}
					emit(s, e, s+delta, e+delta, r, sel)
				})
				continue
			}
		}
		// Uneven replacement over mixed provenance: emit unassigned and
		// let the caller decide.
		introduction := Rev(0)
		for _, r := range involved {
			if r > introduction {
				introduction = r
			}
		}
		emit(a1, a2, b1, b2, introduction, nil)
	}
	return chunks, nil
}

// splitChunk invokes emit for each maximal run of consecutive lines in
// [start, end) sharing the same blame rev. Runs are emitted in order and
// cover the whole range.
func splitChunk(blame []linelog.LineInfo, start, end int, emit func(s, e int, rev Rev)) {
	last := start
	for i := start; i < end; i++ {
		if i+1 == end || blame[i].Rev != blame[i+1].Rev {
			emit(last, i+1, blame[i].Rev)
			last = i + 1
		}
	}
}

// ApplyFileStackEdits materializes the selected chunks into a new stack.
// Chunks with no destination, or destined for the public rev 0, are
// skipped. The remapping to doubled revisions reserves odd labels as
// override slots, so an edit attributed to rev t lands between t and t+1
// and is visible to every later revision.
func ApplyFileStackEdits(fs *stack.FileStackState, chunks []*DiffChunk) (*stack.FileStackState, error) {
	return ApplyFileStackEditsAt(fs, chunks, fs.RevLength()-1)
}

// ApplyFileStackEditsAt is ApplyFileStackEdits for chunks analysed
// against an explicit top revision.
func ApplyFileStackEditsAt(fs *stack.FileStackState, chunks []*DiffChunk, stackTopRev int) (*stack.FileStackState, error) {
	if fs.RevLength() == 0 {
		return nil, errors.Wrap(ErrInvalidState, "cannot apply edits to an empty stack")
	}
	if stackTopRev < 0 || stackTopRev >= fs.RevLength() {
		return nil, errors.Wrapf(ErrInvalidArgument, "stack top rev %d of %d", stackTopRev, fs.RevLength())
	}
	log, err := fs.ToLineLog()
	if err != nil {
		return nil, err
	}
	log.RemapRevs(func(r linelog.Rev) linelog.Rev { return r * 2 })

	selected := make([]*DiffChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.SelectedRev != nil && *c.SelectedRev >= 1 {
			selected = append(selected, c)
		}
	}
	// Edits share the old top-of-stack line coordinates, so apply bottom
	// edits of the file first: an edit never shifts lines above it.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].OldEnd > selected[j].OldEnd
	})

	oldRev := stackTopRev
	for _, c := range selected {
		t := *c.SelectedRev
		if t < c.IntroductionRev {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"chunk at line %d: selected rev %v before introduction rev %v",
				c.OldStart, float64(t), float64(c.IntroductionRev))
		}
		err = log.EditChunk(linelog.Rev(oldRev*2), c.OldStart, c.OldEnd, t*2+1, c.NewLines)
		if err != nil {
			return nil, err
		}
	}

	texts := make([]string, fs.RevLength())
	for i := range texts {
		texts[i], err = log.CheckOut(linelog.Rev(i*2 + 1))
		if err != nil {
			return nil, err
		}
	}
	return stack.New(texts), nil
}

// CalculateAbsorbEditsForFileStack analyses a stack whose final revision
// is the working directory content and applies every chunk as a
// fractional sub-revision keyed by its AbsorbEditId. The returned stack
// keeps the working directory revision in place: checking out
// RevWithAbsorb(i) yields rev i's text with all absorb edits currently
// assigned to it, and a chunk can later be re-targeted by remapping only
// its fractional rev.
func CalculateAbsorbEditsForFileStack(fs *stack.FileStackState) (*stack.FileStackState, map[AbsorbEditId]*DiffChunk, error) {
	if fs.RevLength() < 2 {
		return nil, nil, errors.Wrap(ErrInvalidState, "stack needs a public base and a wdir revision")
	}
	wdirRev := fs.RevLength() - 1
	stackTopRev := wdirRev - 1
	wdirText, err := fs.GetRev(wdirRev)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := AnalyseFileStackAt(fs, wdirText, stackTopRev)
	if err != nil {
		return nil, nil, err
	}
	byId := make(map[AbsorbEditId]*DiffChunk, len(chunks))
	for i, c := range chunks {
		c.AbsorbEditId = AbsorbEditId(i)
		byId[c.AbsorbEditId] = c
	}

	truncated, err := fs.Truncate(wdirRev)
	if err != nil {
		return nil, nil, err
	}
	log, err := truncated.ToLineLog()
	if err != nil {
		return nil, nil, err
	}

	ordered := make([]*DiffChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OldEnd > ordered[j].OldEnd
	})
	for _, c := range ordered {
		// Unassigned chunks, and chunks pinned to the public rev, keep
		// the wdir as their destination so the change stays pending.
		base := Rev(wdirRev)
		if c.SelectedRev != nil && *c.SelectedRev >= 1 {
			base = *c.SelectedRev
		}
		target, err := EmbedAbsorbId(base, c.AbsorbEditId)
		if err != nil {
			return nil, nil, err
		}
		if target < c.IntroductionRev || target < 1 {
			return nil, nil, errors.Wrapf(ErrInvalidArgument,
				"chunk at line %d: target rev %v before introduction rev %v",
				c.OldStart, float64(target), float64(c.IntroductionRev))
		}
		err = log.EditChunk(linelog.Rev(stackTopRev), c.OldStart, c.OldEnd, target, c.NewLines)
		if err != nil {
			return nil, nil, err
		}
	}
	return stack.FromLineLog(log, wdirRev+1), byId, nil
}

func copyLines(lines []string) []string {
	copied := make([]string, len(lines))
	copy(copied, lines)
	return copied
}

// nonPublicRevs collects the deduplicated non-zero blame revs for the
// given line indexes, in first-seen order.
func nonPublicRevs(blame []linelog.LineInfo, idxs []int) []Rev {
	revs := make([]Rev, 0, len(idxs))
	for _, i := range idxs {
		r := blame[i].Rev
		if r == 0 {
			continue
		}
		seen := false
		for _, p := range revs {
			if p == r {
				seen = true
				break
			}
		}
		if !seen {
			revs = append(revs, r)
		}
	}
	return revs
}

// uniformRev reports whether every line in [a1, a2) carries the same
// blame rev, and returns it.
func uniformRev(blame []linelog.LineInfo, a1, a2 int) (Rev, bool) {
	if a1 >= a2 {
		return 0, false
	}
	r := blame[a1].Rev
	for i := a1 + 1; i < a2; i++ {
		if blame[i].Rev != r {
			return 0, false
		}
	}
	return r, true
}

func anyNonPublic(blame []linelog.LineInfo, a1, a2 int) bool {
	for i := a1; i < a2; i++ {
		if blame[i].Rev > 0 {
			return true
		}
	}
	return false
}

func lineRange(a1, a2 int) []int {
	idxs := make([]int, 0, a2-a1)
	for i := a1; i < a2; i++ {
		idxs = append(idxs, i)
	}
	return idxs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
