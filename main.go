package main

// gitabsorb program
// This processes a git fast-export file describing a linear stack of
// commits, where the final commit holds the pending working directory
// changes. For every text file it:
//   * builds the stack of that file's revisions across the commits
//   * analyses which earlier commit each pending change belongs to
//   * folds the changes into those commits
// and writes a rewritten git fast-import file, plus an optional report
// and an optional graphviz file of the absorb decisions.
//
// Design:
// The main loop GitParse():
//     Reads records from the git file using libfastimport
//     Blobs are collected by mark; commits are collected with their
//     File Modify/Delete/Rename/Copy records attached.
// BuildHistories() then walks the commits in order, expanding directory
// level deletes/renames via a file tree, and appends one revision per
// commit to each touched file's history. The first content seen for a
// path is its immutable base - absorbing never rewrites it.
// AbsorbAll() runs the analysis/apply per file on a worker pool.
// WriteExport() replays the commits with rewritten blob contents. Fully
// absorbed files drop out of the final commit.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/emicklei/dot"
	"github.com/h2non/filetype"
	"github.com/pkg/profile"
	"github.com/rcowham/gitabsorb/absorb"
	"github.com/rcowham/gitabsorb/config"
	"github.com/rcowham/gitabsorb/report"
	"github.com/rcowham/gitabsorb/stack"
	"github.com/rcowham/gitabsorb/tree"
	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func Humanize(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(b)/float64(div), "kMGTPE"[exp])
}

type GitAbsorbOptions struct {
	config        *config.Config
	gitImportFile string
	gitExportFile string
	reportFile    string
	graphFile     string
	maxCommits    int
	dryRun        bool
	debugCommit   int // For debug breakpoint
}

type GitAction int

const (
	unknown GitAction = iota
	modify
	delete
	copy
	rename
)

func (a GitAction) String() string {
	return [...]string{"Unknown", "Modify", "Delete", "Copy", "Rename"}[a]
}

// GitFileAction - a single file record within a commit
type GitFileAction struct {
	action  GitAction
	name    string // Git filename (target for rename/copy)
	srcName string // Name of git source file for rename/copy
	mode    libfastimport.Mode
	dataRef string
}

// GitCommit - A git commit with associated file actions
type GitCommit struct {
	commit *libfastimport.CmdCommit
	reset  *libfastimport.CmdReset // Reset which preceded the commit, if any
	files  []*GitFileAction
	gNode  dot.Node // Optional link to GraphizNode
}

func (gc *GitCommit) ref() string {
	return fmt.Sprintf(":%d", gc.commit.Mark)
}

// FileRev - one revision of a file, recorded at a commit
type FileRev struct {
	mark int    // commit mark which produced this content
	name string // path of the file at that commit (before any later rename)
	text string
}

// FileHistory - the stack of revisions of one file. The first revision
// is the immutable base: it is what the file looked like when it first
// appeared in the export, so absorbing never touches it.
type FileHistory struct {
	name   string
	mode   libfastimport.Mode
	revs   []FileRev
	binary bool
}

func (h *FileHistory) lastRev() *FileRev {
	if len(h.revs) == 0 {
		return nil
	}
	return &h.revs[len(h.revs)-1]
}

// AbsorbResult - per file outcome of the analysis and committed apply
type AbsorbResult struct {
	history  *FileHistory
	marks    []int    // commit mark per stack rev (excluding the wdir rev)
	names    []string // path per stack rev - differs across renames
	chunks   []*absorb.DiffChunk
	result   *stack.FileStackState // rewritten stack (excluding the wdir rev)
	absorbed int
	pending  int
	err      error
}

// GitAbsorb - absorbs the final commit of a fast-export stack
type GitAbsorb struct {
	logger     *logrus.Logger
	opts       GitAbsorbOptions
	blobs      map[int]string // Mark to blob contents
	commits    []*GitCommit   // In stream order
	maxMark    int
	histories  map[string]*FileHistory
	skipped    map[string]string // Path to skip reason
	results    map[string]*AbsorbResult
	filesOnDir *tree.Tree // Current state of the git tree
	graph      *dot.Graph // If outputting a graph
	testInput  string     // For testing only
	testOutput *bytes.Buffer
}

func NewGitAbsorb(logger *logrus.Logger, opts *GitAbsorbOptions) *GitAbsorb {
	return &GitAbsorb{logger: logger,
		opts:       *opts,
		blobs:      make(map[int]string),
		commits:    make([]*GitCommit, 0),
		histories:  make(map[string]*FileHistory),
		skipped:    make(map[string]string),
		results:    make(map[string]*AbsorbResult),
		filesOnDir: tree.New()}
}

func getOID(dataref string) (int, error) {
	if !strings.HasPrefix(dataref, ":") {
		return 0, fmt.Errorf("invalid dataref: %s", dataref)
	}
	return strconv.Atoi(dataref[1:])
}

// Distinguishes binary from text according to mimetype sniffing
func isBinaryData(data string) bool {
	l := len(data)
	if l > 261 {
		l = 261
	}
	head := []byte(data[:l])
	if filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsArchive(head) || filetype.IsAudio(head) {
		return true
	}
	if filetype.IsDocument(head) {
		return true
	}
	return strings.ContainsRune(data, '\x00')
}

// GitParse - reads the fast-export file, collecting blobs and commits.
func (g *GitAbsorb) GitParse() error {
	var buf io.Reader
	if g.testInput != "" {
		buf = strings.NewReader(g.testInput)
	} else {
		file, err := os.Open(g.opts.gitImportFile)
		if err != nil {
			return fmt.Errorf("failed to open file '%s': %v", g.opts.gitImportFile, err)
		}
		defer file.Close()
		buf = bufio.NewReader(file)
	}

	var currCommit *GitCommit
	var currReset *libfastimport.CmdReset
	commitCount := 0

	f := libfastimport.NewFrontend(buf, nil, nil)
CmdLoop:
	for {
		cmd, err := f.ReadCmd()
		if err != nil {
			if err == io.EOF {
				break
			}
			g.logger.Errorf("Failed to read cmd: %v", err)
			continue
		}
		switch ctype := cmd.(type) {
		case libfastimport.CmdBlob:
			blob := cmd.(libfastimport.CmdBlob)
			g.logger.Debugf("Blob: Mark:%d OriginalOID:%s Size:%s", blob.Mark, blob.OriginalOID, Humanize(len(blob.Data)))
			g.blobs[blob.Mark] = blob.Data
			if blob.Mark > g.maxMark {
				g.maxMark = blob.Mark
			}

		case libfastimport.CmdReset:
			reset := cmd.(libfastimport.CmdReset)
			g.logger.Debugf("Reset: - %+v", reset)
			currReset = &reset

		case libfastimport.CmdCommit:
			commit := cmd.(libfastimport.CmdCommit)
			g.logger.Debugf("Commit: %+v", commit)
			if len(commit.Msg) > 0 && commit.Msg[len(commit.Msg)-1] != '\n' {
				commit.Msg += "\n"
			}
			if len(commit.Merge) > 0 {
				g.logger.Warnf("Merge commit found %d - absorbing assumes a linear stack", commit.Mark)
			}
			currCommit = &GitCommit{commit: &commit, reset: currReset, files: make([]*GitFileAction, 0)}
			currReset = nil
			g.commits = append(g.commits, currCommit)
			if commit.Mark > g.maxMark {
				g.maxMark = commit.Mark
			}
			if g.opts.debugCommit != 0 && g.opts.debugCommit == commit.Mark {
				g.logger.Debugf("Commit breakpoint: %d", commit.Mark)
			}

		case libfastimport.CmdCommitEnd:
			commitCount += 1
			if g.opts.maxCommits > 0 && commitCount >= g.opts.maxCommits {
				g.logger.Infof("Processed %d commits", commitCount)
				break CmdLoop
			}

		case libfastimport.FileModify:
			fm := cmd.(libfastimport.FileModify)
			g.logger.Debugf("FileModify: %s %+v", currCommit.ref(), fm)
			currCommit.files = append(currCommit.files, &GitFileAction{
				action: modify, name: string(fm.Path), mode: fm.Mode, dataRef: fm.DataRef})

		case libfastimport.FileDelete:
			fd := cmd.(libfastimport.FileDelete)
			g.logger.Debugf("FileDelete: %s Path:%s", currCommit.ref(), fd.Path)
			currCommit.files = append(currCommit.files, &GitFileAction{
				action: delete, name: string(fd.Path)})

		case libfastimport.FileCopy:
			fc := cmd.(libfastimport.FileCopy)
			g.logger.Debugf("FileCopy: %s Src:%s Dst:%s", currCommit.ref(), fc.Src, fc.Dst)
			currCommit.files = append(currCommit.files, &GitFileAction{
				action: copy, name: string(fc.Dst), srcName: string(fc.Src)})

		case libfastimport.FileRename:
			fr := cmd.(libfastimport.FileRename)
			g.logger.Debugf("FileRename: %s Src:%s Dst:%s", currCommit.ref(), fr.Src, fr.Dst)
			currCommit.files = append(currCommit.files, &GitFileAction{
				action: rename, name: string(fr.Dst), srcName: string(fr.Src)})

		case libfastimport.CmdTag:
			t := cmd.(libfastimport.CmdTag)
			g.logger.Debugf("CmdTag: %+v", t)

		default:
			g.logger.Errorf("Not handled: Found ctype %v cmd %+v", ctype, cmd)
		}
	}
	g.logger.Infof("Parsed %d commits, %d blobs", len(g.commits), len(g.blobs))
	return nil
}

// Expand directory level deletes/renames/copies to individual files and
// drop actions which refer to files that do not exist.
func (g *GitAbsorb) validateCommit(cmt *GitCommit) {
	node := g.filesOnDir
	newfiles := make([]*GitFileAction, 0)
	for _, gf := range cmt.files {
		switch gf.action {
		case modify:
			newfiles = append(newfiles, gf)
		case delete:
			if node.Exists(gf.name) {
				newfiles = append(newfiles, gf)
				continue
			}
			files := node.FilesUnder(gf.name)
			if len(files) > 0 {
				g.logger.Debugf("DirDelete: %s Path:%s", cmt.ref(), gf.name)
				for _, df := range files {
					newfiles = append(newfiles, &GitFileAction{action: delete, name: df})
				}
			} else {
				g.logger.Warnf("DeleteIgnored: %s Path:%s", cmt.ref(), gf.name)
			}
		case rename:
			if node.Exists(gf.srcName) {
				newfiles = append(newfiles, gf)
				continue
			}
			files := node.FilesUnder(gf.srcName)
			if len(files) > 0 {
				g.logger.Debugf("DirRename: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
				for _, rf := range files {
					dest := fmt.Sprintf("%s%s", gf.name, rf[len(gf.srcName):])
					newfiles = append(newfiles, &GitFileAction{action: rename, name: dest, srcName: rf})
				}
			} else {
				g.logger.Warnf("RenameIgnored: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
			}
		case copy:
			if node.Exists(gf.srcName) {
				newfiles = append(newfiles, gf)
				continue
			}
			files := node.FilesUnder(gf.srcName)
			if len(files) > 0 {
				g.logger.Debugf("DirCopy: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
				for _, rf := range files {
					dest := fmt.Sprintf("%s%s", gf.name, rf[len(gf.srcName):])
					newfiles = append(newfiles, &GitFileAction{action: copy, name: dest, srcName: rf})
				}
			} else {
				g.logger.Warnf("CopyIgnored: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
			}
		default:
			g.logger.Errorf("Unexpected GFAction: %s %s %s", cmt.ref(), gf.name, gf.action.String())
		}
	}
	cmt.files = newfiles
}

// Append one revision to the history of every file touched by the commit.
func (g *GitAbsorb) processCommit(cmt *GitCommit) {
	node := g.filesOnDir
	for _, gf := range cmt.files {
		switch gf.action {
		case modify:
			var data string
			ok := false
			if gf.dataRef != "" {
				oid, err := getOID(gf.dataRef)
				if err != nil {
					g.logger.Errorf("Failed to get oid: %+v", gf)
					continue
				}
				data, ok = g.blobs[oid]
			}
			if !ok {
				g.logger.Errorf("Failed to find blob: %s %s", cmt.ref(), gf.dataRef)
				continue
			}
			h, exists := g.histories[gf.name]
			if !exists || len(h.revs) == 0 {
				// First sight of the path, or a re-add after a delete -
				// this content becomes the new immutable base.
				h = &FileHistory{name: gf.name, mode: gf.mode, revs: make([]FileRev, 0)}
				g.histories[gf.name] = h
			}
			h.mode = gf.mode
			if !h.binary && (isBinaryData(data) || g.opts.config.ForceBinary(gf.name)) {
				h.binary = true
			}
			if last := h.lastRev(); last != nil && last.mark == cmt.commit.Mark {
				last.text = data // Double modify in one commit - keep the last
			} else {
				h.revs = append(h.revs, FileRev{mark: cmt.commit.Mark, name: gf.name, text: data})
			}
			node.AddFile(gf.name)
		case delete:
			// A delete ends the absorbable history; a later re-add
			// starts a fresh stack with a new base.
			if h, ok := g.histories[gf.name]; ok {
				h.revs = nil
			}
			node.DeleteFile(gf.name)
		case rename:
			if h, ok := g.histories[gf.srcName]; ok && len(h.revs) > 0 {
				h.name = gf.name
				g.histories[gf.name] = h
				g.histories[gf.srcName] = &FileHistory{name: gf.srcName}
			}
			node.AddFile(gf.name)
			node.DeleteFile(gf.srcName)
		case copy:
			// The copy starts its own history based at the source's
			// current content.
			if h, ok := g.histories[gf.srcName]; ok && len(h.revs) > 0 {
				g.histories[gf.name] = &FileHistory{name: gf.name, mode: h.mode, binary: h.binary,
					revs: []FileRev{{mark: cmt.commit.Mark, name: gf.name, text: h.lastRev().text}}}
			}
			node.AddFile(gf.name)
		}
	}
}

// BuildHistories walks the parsed commits building per file stacks.
func (g *GitAbsorb) BuildHistories() {
	for _, cmt := range g.commits {
		g.validateCommit(cmt)
		g.processCommit(cmt)
	}
}

// absorbFile runs the analysis and committed apply for one file history.
func (g *GitAbsorb) absorbFile(h *FileHistory) *AbsorbResult {
	revs := h.revs
	depth := g.opts.config.MaxStackDepth
	if depth > 0 && len(revs) > depth+1 {
		revs = revs[len(revs)-depth-1:]
	}
	texts := make([]string, len(revs)-1)
	marks := make([]int, len(revs)-1)
	names := make([]string, len(revs)-1)
	for i := range texts {
		texts[i] = revs[i].text
		marks[i] = revs[i].mark
		names[i] = revs[i].name
	}
	wdirText := revs[len(revs)-1].text

	res := &AbsorbResult{history: h, marks: marks, names: names}
	fs := stack.New(texts)
	chunks, err := absorb.AnalyseFileStack(fs, wdirText)
	if err != nil {
		res.err = err
		return res
	}
	res.chunks = chunks
	out, err := absorb.ApplyFileStackEdits(fs, chunks)
	if err != nil {
		res.err = err
		return res
	}
	res.result = out
	for _, c := range chunks {
		if c.SelectedRev != nil && *c.SelectedRev >= 1 {
			res.absorbed += 1
		} else {
			res.pending += 1
		}
	}
	return res
}

// AbsorbAll runs the per file analysis on a worker pool.
func (g *GitAbsorb) AbsorbAll(pool *pond.WorkerPool) {
	if len(g.commits) < 2 {
		g.logger.Warnf("Nothing to absorb: %d commits", len(g.commits))
		return
	}
	weCreatedPool := false
	if pool == nil {
		weCreatedPool = true
		pondSize := runtime.NumCPU()
		pool = pond.New(pondSize, 0, pond.MinWorkers(10))
	}
	wdirMark := g.commits[len(g.commits)-1].commit.Mark

	var mutex sync.Mutex
	group := pool.Group()
	for _, h := range g.histories {
		h := h
		if last := h.lastRev(); last == nil || last.mark != wdirMark {
			continue // Not touched by the pending commit
		}
		if len(h.revs) < 3 {
			g.skipped[h.name] = "no earlier revisions"
			continue
		}
		if h.binary {
			g.skipped[h.name] = "binary"
			continue
		}
		if g.opts.config.SkipFile(h.name) {
			g.skipped[h.name] = "configured skip"
			continue
		}
		group.Submit(func() {
			res := g.absorbFile(h)
			mutex.Lock()
			defer mutex.Unlock()
			if res.err != nil {
				g.logger.Errorf("Failed to absorb %s: %v", h.name, res.err)
				g.skipped[h.name] = fmt.Sprintf("error: %v", res.err)
				return
			}
			g.logger.Infof("Absorbed: %s chunks %d absorbed %d pending %d",
				h.name, len(res.chunks), res.absorbed, res.pending)
			g.results[h.name] = res
		})
	}
	group.Wait()
	if weCreatedPool {
		pool.StopAndWait()
	}
}

func (g *GitAbsorb) sortedResultNames() []string {
	names := make([]string, 0, len(g.results))
	for name := range g.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteReport writes the textual absorb journal.
func (g *GitAbsorb) WriteReport(w io.Writer) {
	rpt := &report.Report{}
	rpt.SetWriter(w)
	rpt.WriteHeader(g.opts.gitImportFile)
	chunks, absorbed, pending := 0, 0, 0
	for _, name := range g.sortedResultNames() {
		res := g.results[name]
		rpt.WriteFile(name, len(res.marks)+1)
		for _, c := range res.chunks {
			chunks += 1
			if c.SelectedRev != nil && *c.SelectedRev >= 1 {
				absorbed += 1
				rpt.WriteChunk(res.marks[int(*c.SelectedRev)], c.OldStart, c.OldEnd,
					len(c.OldLines), len(c.NewLines))
			} else {
				pending += 1
				rpt.WritePending(c.OldStart, c.OldEnd)
			}
		}
	}
	skipNames := make([]string, 0, len(g.skipped))
	for name := range g.skipped {
		skipNames = append(skipNames, name)
	}
	sort.Strings(skipNames)
	for _, name := range skipNames {
		rpt.WriteSkip(name, g.skipped[name])
	}
	rpt.WriteSummary(len(g.results), chunks, absorbed, pending)
}

// WriteGraph writes a graphviz DOT file of the absorb decisions.
func (g *GitAbsorb) WriteGraph(w io.Writer) {
	g.graph = dot.NewGraph(dot.Directed)
	var prev *GitCommit
	for _, cmt := range g.commits {
		label := fmt.Sprintf("Commit: %d", cmt.commit.Mark)
		if msg := strings.TrimSpace(cmt.commit.Msg); msg != "" {
			if i := strings.IndexByte(msg, '\n'); i > 0 {
				msg = msg[:i]
			}
			label = fmt.Sprintf("Commit: %d %s", cmt.commit.Mark, msg)
		}
		cmt.gNode = g.graph.Node(label)
		if prev != nil {
			g.graph.Edge(prev.gNode, cmt.gNode, "p")
		}
		prev = cmt
	}
	nodeByMark := make(map[int]dot.Node)
	for _, cmt := range g.commits {
		nodeByMark[cmt.commit.Mark] = cmt.gNode
	}
	for _, name := range g.sortedResultNames() {
		res := g.results[name]
		fNode := g.graph.Node(name)
		for _, c := range res.chunks {
			if c.SelectedRev == nil || *c.SelectedRev < 1 {
				continue
			}
			mark := res.marks[int(*c.SelectedRev)]
			g.graph.Edge(fNode, nodeByMark[mark], fmt.Sprintf("[%d,%d)", c.OldStart, c.OldEnd))
		}
	}
	fmt.Fprint(w, g.graph.String())
}

// MyWriterCloser - wrapper to give WriteCloser interface to buffered writer
type MyWriterCloser struct {
	f *os.File
	*bufio.Writer
}

func (mwc *MyWriterCloser) Close() error {
	if err := mwc.Flush(); err != nil {
		return err
	}
	if mwc.f != nil {
		return mwc.f.Close()
	}
	return nil
}

type revRef struct {
	res *AbsorbResult
	idx int
}

// resultIndex maps "path at commit mark" to the rewritten stack rev, so
// contents are found across renames.
func (g *GitAbsorb) resultIndex() map[string]revRef {
	byNameMark := make(map[string]revRef)
	for _, res := range g.results {
		for i, m := range res.marks {
			byNameMark[fmt.Sprintf("%s:%d", res.names[i], m)] = revRef{res: res, idx: i}
		}
	}
	return byNameMark
}

// fullyAbsorbed - true when the final commit no longer changes the file.
func (g *GitAbsorb) fullyAbsorbed(name string) bool {
	res, ok := g.results[name]
	if !ok {
		return false
	}
	parent, err := res.result.GetRev(res.result.RevLength() - 1)
	if err != nil {
		g.logger.Errorf("Failed to check out %s: %v", name, err)
		return false
	}
	return parent == res.history.lastRev().text
}

// WriteExport replays the commits with rewritten contents as a git
// fast-import stream.
func (g *GitAbsorb) WriteExport(mwc *MyWriterCloser) {
	backend := libfastimport.NewBackend(mwc, nil, nil)
	nextMark := g.maxMark
	contentMarks := make(map[string]int) // Dedup identical rewritten blobs

	blobMark := func(data string) int {
		if m, ok := contentMarks[data]; ok {
			return m
		}
		nextMark += 1
		contentMarks[data] = nextMark
		err := backend.Do(libfastimport.CmdBlob{Mark: nextMark, Data: data})
		if err != nil {
			g.logger.Errorf("Failed to write blob: %v", err)
		}
		return nextMark
	}

	doCmd := func(cmd libfastimport.Cmd) {
		err := backend.Do(cmd)
		if err != nil {
			g.logger.Errorf("Failed to write cmd: %v", err)
		}
	}

	byNameMark := g.resultIndex()
	for i, cmt := range g.commits {
		final := i == len(g.commits)-1
		// Emit the blobs the commit needs, remembering the mark per
		// action; -1 marks a fully absorbed file to drop.
		marks := make(map[*GitFileAction]int)
		for _, gf := range cmt.files {
			if gf.action != modify {
				continue
			}
			if final {
				if res, ok := g.results[gf.name]; ok {
					if g.fullyAbsorbed(gf.name) {
						g.logger.Infof("FullyAbsorbed: %s", gf.name)
						marks[gf] = -1
					} else {
						marks[gf] = blobMark(res.history.lastRev().text)
					}
					continue
				}
			} else if ref, ok := byNameMark[fmt.Sprintf("%s:%d", gf.name, cmt.commit.Mark)]; ok {
				text, err := ref.res.result.GetRev(ref.idx)
				if err != nil {
					g.logger.Errorf("Failed to check out %s rev %d: %v", gf.name, ref.idx, err)
				} else {
					marks[gf] = blobMark(text)
					continue
				}
			}
			// Untouched file - re-emit the original content.
			oid, err := getOID(gf.dataRef)
			if err != nil {
				g.logger.Errorf("Failed to get oid: %+v", gf)
				marks[gf] = -1
				continue
			}
			marks[gf] = blobMark(g.blobs[oid])
		}

		if cmt.reset != nil {
			doCmd(*cmt.reset)
		}
		doCmd(*cmt.commit)
		for _, gf := range cmt.files {
			switch gf.action {
			case modify:
				if marks[gf] < 0 {
					continue // Dropped from the final commit
				}
				doCmd(libfastimport.FileModify{Path: libfastimport.Path(gf.name),
					Mode: gf.mode, DataRef: fmt.Sprintf(":%d", marks[gf])})
			case delete:
				doCmd(libfastimport.FileDelete{Path: libfastimport.Path(gf.name)})
			case rename:
				doCmd(libfastimport.FileRename{Src: libfastimport.Path(gf.srcName),
					Dst: libfastimport.Path(gf.name)})
			case copy:
				doCmd(libfastimport.FileCopy{Src: libfastimport.Path(gf.srcName),
					Dst: libfastimport.Path(gf.name)})
			}
		}
		doCmd(libfastimport.CmdCommitEnd{})
	}
}

// RunAbsorb - the full pipeline.
func (g *GitAbsorb) RunAbsorb(pool *pond.WorkerPool) error {
	if err := g.GitParse(); err != nil {
		return err
	}
	g.BuildHistories()
	g.AbsorbAll(pool)

	if g.opts.reportFile != "" {
		f, err := os.Create(g.opts.reportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		g.WriteReport(f)
	}
	if g.opts.graphFile != "" {
		f, err := os.Create(g.opts.graphFile)
		if err != nil {
			return err
		}
		defer f.Close()
		g.WriteGraph(f)
	}
	if g.opts.dryRun {
		g.logger.Infof("Dry run - not writing %s", g.opts.gitExportFile)
		return nil
	}
	var mwc *MyWriterCloser
	if g.testInput != "" {
		g.testOutput = new(bytes.Buffer)
		mwc = &MyWriterCloser{nil, bufio.NewWriter(g.testOutput)}
	} else {
		f, err := os.Create(g.opts.gitExportFile)
		if err != nil {
			return err
		}
		mwc = &MyWriterCloser{f, bufio.NewWriter(f)}
	}
	defer mwc.Close()
	g.WriteExport(mwc)
	return nil
}

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for gitabsorb.",
		).Default("gitabsorb.yaml").Short('c').String()
		gitimport = kingpin.Arg(
			"gitimport",
			"Git fast-export file to process.",
		).String()
		gitexport = kingpin.Flag(
			"output",
			"Git fast-import file to write with absorbed contents.",
		).Default("absorbed.git").Short('o').String()
		reportFile = kingpin.Flag(
			"report",
			"Report file recording absorb decisions.",
		).String()
		outputGraph = kingpin.Flag(
			"graphfile",
			"Graphviz dot file to output absorb decisions to.",
		).String()
		maxCommits = kingpin.Flag(
			"max.commits",
			"Max no of commits to process.",
		).Short('m').Int()
		dryrun = kingpin.Flag(
			"dryrun",
			"Analyse and report but don't write the output file.",
		).Bool()
		memProfile = kingpin.Flag(
			"memprofile",
			"Write a memory profile to the current directory.",
		).Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
		debugCommit = kingpin.Flag(
			"debug.commit",
			"For debugging - to allow breakpoints to be set.",
		).Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("gitabsorb")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Absorbs the final commit of a git fast-export stack into the commits that last touched the changed lines\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *memProfile {
		defer profile.Start(profile.MemProfile).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	cfg := &config.Config{}
	if _, err := os.Stat(*configFile); err == nil {
		cfg, err = config.LoadConfigFile(*configFile)
		if err != nil {
			logger.Errorf("error loading config file: %v", err)
			os.Exit(-1)
		}
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("gitabsorb"))
	logger.Infof("Starting %s, gitimport: %v", startTime, *gitimport)

	opts := &GitAbsorbOptions{
		config:        cfg,
		gitImportFile: *gitimport,
		gitExportFile: *gitexport,
		reportFile:    *reportFile,
		graphFile:     *outputGraph,
		maxCommits:    *maxCommits,
		dryRun:        *dryrun,
		debugCommit:   *debugCommit,
	}
	logger.Infof("Options: %+v", opts)
	g := NewGitAbsorb(logger, opts)

	pondSize := runtime.NumCPU()
	pool := pond.New(pondSize, 0, pond.MinWorkers(10))

	if err := g.RunAbsorb(pool); err != nil {
		logger.Errorf("Failed to absorb: %v", err)
		os.Exit(-1)
	}
	pool.StopAndWait()
	logger.Infof("Elapsed time: %v", time.Since(startTime))
}
