package report

// Report - writes a plain text journal of absorb decisions so the result
// of a run can be reviewed (or diffed in tests) without replaying the
// rewritten import file.
//
// Example output:
//
// gitabsorb report for export.git
// file: src/main.c revs: 4
//   chunk: lines [3,5) -> commit :2 (2 -> 2 lines)
//   pending: lines [7,8) left in working tree
// skip: assets/logo.png (binary)
// summary: files 2, chunks 3, absorbed 2, pending 1

import (
	"fmt"
	"io"
)

type Report struct {
	w io.Writer
}

func (r *Report) SetWriter(w io.Writer) {
	r.w = w
}

func (r *Report) WriteHeader(importFile string) {
	_, err := fmt.Fprintf(r.w, "gitabsorb report for %s\n", importFile)
	if err != nil {
		panic(err)
	}
}

// WriteFile records the start of a file's chunk list.
func (r *Report) WriteFile(path string, revs int) {
	_, err := fmt.Fprintf(r.w, "file: %s revs: %d\n", path, revs)
	if err != nil {
		panic(err)
	}
}

// WriteChunk records one absorbed chunk and its destination commit mark.
func (r *Report) WriteChunk(destMark int, oldStart int, oldEnd int, oldCount int, newCount int) {
	_, err := fmt.Fprintf(r.w, "  chunk: lines [%d,%d) -> commit :%d (%d -> %d lines)\n",
		oldStart, oldEnd, destMark, oldCount, newCount)
	if err != nil {
		panic(err)
	}
}

// WritePending records a chunk which could not be absorbed.
func (r *Report) WritePending(oldStart int, oldEnd int) {
	_, err := fmt.Fprintf(r.w, "  pending: lines [%d,%d) left in working tree\n",
		oldStart, oldEnd)
	if err != nil {
		panic(err)
	}
}

// WriteSkip records a file excluded from absorbing.
func (r *Report) WriteSkip(path string, reason string) {
	_, err := fmt.Fprintf(r.w, "skip: %s (%s)\n", path, reason)
	if err != nil {
		panic(err)
	}
}

func (r *Report) WriteSummary(files int, chunks int, absorbed int, pending int) {
	_, err := fmt.Fprintf(r.w, "summary: files %d, chunks %d, absorbed %d, pending %d\n",
		files, chunks, absorbed, pending)
	if err != nil {
		panic(err)
	}
}
