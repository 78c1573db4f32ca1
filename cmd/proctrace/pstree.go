package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"

	"cdr.dev/proctrace"
)

// process is one run of a program: a begin event, and an end event once it
// exited. PIDs are reused, so a PID only identifies a process while it runs.
type process struct {
	begin    *proctrace.ProcessBegin
	end      *proctrace.ProcessEnd
	children []*process
}

type tree struct {
	roots []*process
}

// buildTree links processes to their parents in event order. A process whose
// parent was not traced becomes a root.
func buildTree(events []*proctrace.Event) *tree {
	var (
		t       = &tree{}
		running = map[uint32]*process{}
	)
	for _, event := range events {
		switch {
		case event.ProcessBegin != nil:
			b := event.ProcessBegin
			p := &process{begin: b}
			parent, ok := running[b.PPID]
			if b.HasPPID && ok {
				parent.children = append(parent.children, p)
			} else {
				t.roots = append(t.roots, p)
			}
			running[b.PID] = p

		case event.ProcessEnd != nil:
			e := event.ProcessEnd
			p, ok := running[e.PID]
			if !ok {
				// The begin event is missing, keep the end anyway.
				p = &process{}
				t.roots = append(t.roots, p)
			}
			p.end = e
			delete(running, e.PID)
		}
	}
	return t
}

func (p *process) String() string {
	if p.begin == nil {
		return fmt.Sprintf("[%v] ???", p.end.PID)
	}
	return fmt.Sprintf("[%v] %s", p.begin.PID, shellquote.Join(p.begin.Cmdline...))
}

// processes returns every process in the tree, parents before children.
func (t *tree) processes() []*process {
	var (
		out  []*process
		walk func(p *process)
	)
	walk = func(p *process) {
		out = append(out, p)
		for _, c := range p.children {
			walk(c)
		}
	}
	for _, p := range t.roots {
		walk(p)
	}
	return out
}

func (t *tree) print(w io.Writer) {
	var walk func(p *process, depth int)
	walk = func(p *process, depth int) {
		_, _ = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), p)
		for _, c := range p.children {
			walk(c, depth+1)
		}
	}
	for _, p := range t.roots {
		walk(p, 0)
	}
}
