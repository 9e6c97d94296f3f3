package linelog

// Linelog - a line history data structure for a single file across a stack
// of revisions.
//
// The structure is an interpreted program: a flat list of instructions
// which, executed against a revision number, emits the lines visible at
// that revision together with the revision that introduced each line.
// Edits never rewrite history in place - they append a new instruction
// block and patch a single jump, so every revision (including revisions
// that predate the edit) remains checkout-able.
//
// Instructions:
//   JUMP addr        - unconditional jump
//   JGE  rev addr    - jump if the executed rev >= rev
//   JL   rev addr    - jump if the executed rev < rev
//   LINE rev data    - emit a line introduced at rev
//   END              - stop
//
// Revisions are float64 so that callers may embed extra identity into the
// fractional part of a revision number and still check it out.

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// Rev identifies a revision. Integer values are true stack positions.
type Rev float64

// LineInfo - a single line visible at a checkout, with provenance.
type LineInfo struct {
	Rev  Rev    // Revision which introduced the line
	Data string // Line content, including any trailing newline
	PC   int    // Address of the producing instruction - a stable line id
}

var (
	ErrCorrupt    = errors.New("corrupt linelog program")
	ErrOutOfRange = errors.New("line range out of bounds")
)

type opCode uint8

const (
	opEnd opCode = iota
	opJump
	opJGE
	opJL
	opLine
)

type inst struct {
	op   opCode
	rev  Rev
	addr int
	data string
}

// LineLog - the interpreted instruction list.
type LineLog struct {
	code   []inst
	maxRev Rev
}

// New returns an empty log: every checkout yields no lines.
func New() *LineLog {
	return &LineLog{code: []inst{{op: opEnd}}}
}

// Clone returns an independent copy of the log.
func (l *LineLog) Clone() *LineLog {
	code := make([]inst, len(l.code))
	copy(code, l.code)
	return &LineLog{code: code, maxRev: l.maxRev}
}

// MaxRev returns the highest revision passed to RecordText or EditChunk;
// RemapRevs resets it to the highest revision label left in the program.
func (l *LineLog) MaxRev() Rev {
	return l.maxRev
}

// execute interprets the program for rev. The result has one entry per
// visible line plus a trailing sentinel for the END instruction, so
// callers always get len(lines)+1 entries and can use the sentinel's PC
// as the append position.
func (l *LineLog) execute(rev Rev) ([]LineInfo, error) {
	lines := make([]LineInfo, 0, len(l.code))
	pc := 0
	// A well-formed program visits each instruction at most once.
	for steps := 0; steps <= len(l.code); steps++ {
		if pc < 0 || pc >= len(l.code) {
			return nil, errors.Wrapf(ErrCorrupt, "pc %d outside program", pc)
		}
		in := l.code[pc]
		switch in.op {
		case opEnd:
			lines = append(lines, LineInfo{Rev: in.rev, Data: "", PC: pc})
			return lines, nil
		case opJump:
			pc = in.addr
		case opJGE:
			if rev >= in.rev {
				pc = in.addr
			} else {
				pc++
			}
		case opJL:
			if rev < in.rev {
				pc = in.addr
			} else {
				pc++
			}
		case opLine:
			lines = append(lines, LineInfo{Rev: in.rev, Data: in.data, PC: pc})
			pc++
		}
	}
	return nil, errors.Wrapf(ErrCorrupt, "no END reached for rev %v", float64(rev))
}

// CheckOutLines returns the lines visible at rev with their provenance,
// plus a trailing sentinel entry.
func (l *LineLog) CheckOutLines(rev Rev) ([]LineInfo, error) {
	return l.execute(rev)
}

// CheckOut returns the full text at rev.
func (l *LineLog) CheckOut(rev Rev) (string, error) {
	lines, err := l.execute(rev)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, li := range lines {
		sb.WriteString(li.Data)
	}
	return sb.String(), nil
}

// EditChunk replaces lines [a1, a2) of the view at fromRev by newLines,
// attributing the edit to toRev. The edit is visible to checkouts at
// rev >= toRev; checkouts below toRev are unaffected.
//
// The instruction at the first replaced line is moved to the end of a new
// block and its old slot overwritten with a jump into the block. The
// block guards the inserted lines with JL toRev and skips the replaced
// range with JGE toRev, so both sides of the edit stay reachable.
func (l *LineLog) EditChunk(fromRev Rev, a1, a2 int, toRev Rev, newLines []string) error {
	lines, err := l.execute(fromRev)
	if err != nil {
		return err
	}
	if a1 < 0 || a1 > a2 || a2 > len(lines)-1 {
		return errors.Wrapf(ErrOutOfRange, "[%d, %d) of %d lines at rev %v",
			a1, a2, len(lines)-1, float64(fromRev))
	}
	start := len(l.code)
	a1pc := lines[a1].PC
	moved := l.code[a1pc]
	if len(newLines) > 0 {
		skip := start + len(newLines) + 1
		if a1 < a2 {
			skip++ // also skip the JGE guarding the deleted range
		}
		l.code = append(l.code, inst{op: opJL, rev: toRev, addr: skip})
		for _, data := range newLines {
			l.code = append(l.code, inst{op: opLine, rev: toRev, data: data})
		}
	}
	if a1 < a2 {
		// Resume right after the last replaced line, not at the line at
		// a2 itself, so any guards in front of that line still apply.
		l.code = append(l.code, inst{op: opJGE, rev: toRev, addr: lines[a2-1].PC + 1})
	}
	l.code = append(l.code, moved)
	// Resume after the patched slot once the moved instruction falls
	// through (a moved END or jump never reaches this).
	l.code = append(l.code, inst{op: opJump, addr: a1pc + 1})
	l.code[a1pc] = inst{op: opJump, addr: start}
	if toRev > l.maxRev {
		l.maxRev = toRev
	}
	return nil
}

// RemapRevs rewrites every revision label in the log.
func (l *LineLog) RemapRevs(f func(Rev) Rev) {
	maxRev := Rev(0)
	for i := range l.code {
		switch l.code[i].op {
		case opJGE, opJL, opLine:
			l.code[i].rev = f(l.code[i].rev)
			if l.code[i].rev > maxRev {
				maxRev = l.code[i].rev
			}
		}
	}
	l.maxRev = maxRev
}

// RecordText makes text the content of rev, diffing against the current
// content at MaxRev. Diff blocks are applied bottom-up so earlier blocks
// keep their line numbers while later ones are patched in.
func (l *LineLog) RecordText(rev Rev, text string) error {
	aRev := l.maxRev
	oldInfos, err := l.execute(aRev)
	if err != nil {
		return err
	}
	oldLines := make([]string, len(oldInfos)-1)
	for i := range oldLines {
		oldLines[i] = oldInfos[i].Data
	}
	newLines := SplitLines(text)
	blocks := DiffLines(oldLines, newLines)
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if err := l.EditChunk(aRev, b.A1, b.A2, rev, newLines[b.B1:b.B2]); err != nil {
			return err
		}
	}
	if rev > l.maxRev {
		l.maxRev = rev
	}
	return nil
}

// SplitLines splits text into lines, each keeping its trailing newline.
// A final line without a newline is kept as-is; empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// DiffBlock - a single "a[A1:A2] is replaced by b[B1:B2]" region. A pure
// insertion has A1 == A2, a pure deletion B1 == B2.
type DiffBlock struct {
	A1, A2 int
	B1, B2 int
}

// DiffLines computes an ordered, non-overlapping cover of the differences
// between two line slices. Equal runs are omitted.
func DiffLines(a, b []string) []DiffBlock {
	m := difflib.NewMatcher(a, b)
	blocks := make([]DiffBlock, 0)
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		blocks = append(blocks, DiffBlock{A1: op.I1, A2: op.I2, B1: op.J1, B2: op.J2})
	}
	return blocks
}
