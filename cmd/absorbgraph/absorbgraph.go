package main

// absorbgraph program
// This processes a git fast-export file describing a linear stack of
// commits and writes a graph file (graphviz dot format) showing which
// commit each pending change of the final commit would be absorbed into.
// Analysis only - nothing is rewritten. Optionally renders the graph to
// SVG.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
	"github.com/rcowham/gitabsorb/absorb"
	"github.com/rcowham/gitabsorb/stack"
	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

type GraphOptions struct {
	gitExportFile string
	graphFile     string
	svgFile       string
	maxCommits    int
}

// fileStack - the revisions of one file in commit order
type fileStack struct {
	name  string
	marks []int
	texts []string
}

type commitNode struct {
	mark  int
	msg   string
	gNode dot.Node
}

// AbsorbGrapher - builds the absorb decision graph
type AbsorbGrapher struct {
	logger  *logrus.Logger
	opts    GraphOptions
	blobs   map[int]string
	commits []*commitNode
	stacks  map[string]*fileStack
}

func NewAbsorbGrapher(logger *logrus.Logger, opts *GraphOptions) *AbsorbGrapher {
	return &AbsorbGrapher{logger: logger,
		opts:    *opts,
		blobs:   make(map[int]string),
		commits: make([]*commitNode, 0),
		stacks:  make(map[string]*fileStack)}
}

func getOID(dataref string) (int, error) {
	if !strings.HasPrefix(dataref, ":") {
		return 0, fmt.Errorf("invalid dataref: %s", dataref)
	}
	return strconv.Atoi(dataref[1:])
}

// Parse reads the export file collecting per-file revision stacks.
func (a *AbsorbGrapher) Parse(buf io.Reader) error {
	var currMark int
	commitCount := 0
	f := libfastimport.NewFrontend(buf, nil, nil)
CmdLoop:
	for {
		cmd, err := f.ReadCmd()
		if err != nil {
			if err == io.EOF {
				break
			}
			a.logger.Errorf("Failed to read cmd: %v", err)
			continue
		}
		switch ctype := cmd.(type) {
		case libfastimport.CmdBlob:
			blob := cmd.(libfastimport.CmdBlob)
			a.blobs[blob.Mark] = blob.Data
		case libfastimport.CmdCommit:
			commit := cmd.(libfastimport.CmdCommit)
			msg := strings.TrimSpace(commit.Msg)
			if i := strings.IndexByte(msg, '\n'); i > 0 {
				msg = msg[:i]
			}
			a.commits = append(a.commits, &commitNode{mark: commit.Mark, msg: msg})
			currMark = commit.Mark
		case libfastimport.CmdCommitEnd:
			commitCount += 1
			if a.opts.maxCommits > 0 && commitCount >= a.opts.maxCommits {
				a.logger.Infof("Processed %d commits", commitCount)
				break CmdLoop
			}
		case libfastimport.FileModify:
			fm := cmd.(libfastimport.FileModify)
			oid, err := getOID(fm.DataRef)
			if err != nil {
				a.logger.Errorf("Failed to get oid: %+v", fm)
				continue
			}
			data, ok := a.blobs[oid]
			if !ok {
				a.logger.Errorf("Failed to find blob: %d", oid)
				continue
			}
			name := string(fm.Path)
			s, ok := a.stacks[name]
			if !ok {
				s = &fileStack{name: name}
				a.stacks[name] = s
			}
			if n := len(s.marks); n > 0 && s.marks[n-1] == currMark {
				s.texts[n-1] = data
			} else {
				s.marks = append(s.marks, currMark)
				s.texts = append(s.texts, data)
			}
		case libfastimport.FileRename:
			fr := cmd.(libfastimport.FileRename)
			if s, ok := a.stacks[string(fr.Src)]; ok {
				s.name = string(fr.Dst)
				a.stacks[string(fr.Dst)] = s
				delete(a.stacks, string(fr.Src))
			}
		case libfastimport.FileDelete:
			fd := cmd.(libfastimport.FileDelete)
			delete(a.stacks, string(fd.Path))
		case libfastimport.FileCopy:
			fc := cmd.(libfastimport.FileCopy)
			a.logger.Debugf("FileCopy ignored: %s -> %s", fc.Src, fc.Dst)
		case libfastimport.CmdReset:
		case libfastimport.CmdTag:
		default:
			a.logger.Errorf("Not handled: Found ctype %v cmd %+v", ctype, cmd)
		}
	}
	return nil
}

// Graph runs the absorb analysis per file and renders the decisions.
func (a *AbsorbGrapher) Graph(w io.Writer) error {
	graph := dot.NewGraph(dot.Directed)
	nodeByMark := make(map[int]dot.Node)
	var prev *commitNode
	for _, c := range a.commits {
		c.gNode = graph.Node(fmt.Sprintf("Commit: %d %s", c.mark, c.msg))
		nodeByMark[c.mark] = c.gNode
		if prev != nil {
			graph.Edge(prev.gNode, c.gNode, "p")
		}
		prev = c
	}
	if len(a.commits) < 2 {
		a.logger.Warnf("Nothing to analyse: %d commits", len(a.commits))
		fmt.Fprint(w, graph.String())
		return nil
	}
	wdirMark := a.commits[len(a.commits)-1].mark

	names := make([]string, 0, len(a.stacks))
	for name := range a.stacks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := a.stacks[name]
		n := len(s.marks)
		if n < 3 || s.marks[n-1] != wdirMark {
			continue
		}
		fs := stack.New(s.texts[:n-1])
		chunks, err := absorb.AnalyseFileStack(fs, s.texts[n-1])
		if err != nil {
			a.logger.Errorf("Failed to analyse %s: %v", name, err)
			continue
		}
		fNode := graph.Node(name)
		for _, c := range chunks {
			if c.SelectedRev == nil || *c.SelectedRev < 1 {
				graph.Edge(fNode, nodeByMark[wdirMark], "pending")
				continue
			}
			mark := s.marks[int(*c.SelectedRev)]
			graph.Edge(fNode, nodeByMark[mark], fmt.Sprintf("[%d,%d)", c.OldStart, c.OldEnd))
		}
	}
	fmt.Fprint(w, graph.String())
	return nil
}

// RenderSVG renders a dot graph file to SVG.
func RenderSVG(dotData []byte, svgFile string) error {
	graph, err := graphviz.ParseBytes(dotData)
	if err != nil {
		return err
	}
	gv := graphviz.New()
	return gv.RenderFilename(graph, graphviz.SVG, svgFile)
}

func main() {
	var (
		gitexport = kingpin.Arg(
			"gitexport",
			"Git fast-export file to process.",
		).String()
		outputGraph = kingpin.Flag(
			"graphfile",
			"Graphviz dot file to write absorb decisions to.",
		).Default("absorb.dot").Short('g').String()
		svgFile = kingpin.Flag(
			"svg",
			"(Optional) render the graph to this SVG file.",
		).String()
		maxCommits = kingpin.Flag(
			"max.commits",
			"Max no of commits to process.",
		).Short('m').Int()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("absorbgraph")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Parses a git fast-export file and graphs where the final commit's changes would be absorbed\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("absorbgraph"))
	logger.Infof("Starting %s, gitexport: %v", startTime, *gitexport)

	opts := &GraphOptions{
		gitExportFile: *gitexport,
		graphFile:     *outputGraph,
		svgFile:       *svgFile,
		maxCommits:    *maxCommits,
	}
	a := NewAbsorbGrapher(logger, opts)

	file, err := os.Open(opts.gitExportFile)
	if err != nil {
		logger.Errorf("Failed to open file '%s': %v", opts.gitExportFile, err)
		os.Exit(1)
	}
	defer file.Close()
	if err := a.Parse(bufio.NewReader(file)); err != nil {
		logger.Errorf("Failed to parse: %v", err)
		os.Exit(1)
	}

	f, err := os.Create(opts.graphFile)
	if err != nil {
		logger.Errorf("Failed to create '%s': %v", opts.graphFile, err)
		os.Exit(1)
	}
	if err := a.Graph(f); err != nil {
		logger.Errorf("Failed to graph: %v", err)
		f.Close()
		os.Exit(1)
	}
	f.Close()

	if opts.svgFile != "" {
		dotData, err := os.ReadFile(opts.graphFile)
		if err != nil {
			logger.Errorf("Failed to read '%s': %v", opts.graphFile, err)
			os.Exit(1)
		}
		if err := RenderSVG(dotData, opts.svgFile); err != nil {
			logger.Errorf("Failed to render SVG: %v", err)
			os.Exit(1)
		}
		logger.Infof("Rendered %s", opts.svgFile)
	}
	logger.Infof("Elapsed time: %v", time.Since(startTime))
}
