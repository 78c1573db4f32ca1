package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cdr.dev/proctrace"
)

func endUsage(pid uint32, cpu proctrace.Timestamp, usage *proctrace.ResourceUsage) *proctrace.Event {
	return &proctrace.Event{ProcessEnd: &proctrace.ProcessEnd{PID: pid, CPUTime: cpu, Usage: usage}}
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	type want struct {
		n                   int
		min, mean, max, sum float64
	}
	cases := []struct {
		name   string
		events []*proctrace.Event
		// Keyed by attribute title; attributes not listed must be all zero.
		want map[string]want
	}{
		{
			name: "Empty",
		},
		{
			name: "Complete",
			events: []*proctrace.Event{
				begin(10, 1, "make"),
				begin(11, 10, "cc"),
				endUsage(11, proctrace.Timestamp{Sec: 1, Nsec: 500000000}, &proctrace.ResourceUsage{
					MaxRSSKB: 100, MinorFaults: 10, InBlock: 4,
				}),
				endUsage(10, proctrace.Timestamp{Sec: 2, Nsec: 500000000}, &proctrace.ResourceUsage{
					MaxRSSKB: 300, MinorFaults: 30, OutBlock: 8,
				}),
			},
			want: map[string]want{
				"CPU Time":                     {2, 1.5, 2, 2.5, 4},
				"Maximum Resident Set Size":    {2, 100, 200, 300, 400},
				"Minor Page Faults":            {2, 10, 20, 30, 40},
				"Filesystem Input Operations":  {2, 0, 2, 4, 4},
				"Filesystem Output Operations": {2, 0, 4, 8, 8},
				"Kernel Time":                  {n: 2},
				"User Time":                    {n: 2},
				"Major Page Faults":            {n: 2},
			},
		},
		{
			name: "Incomplete",
			events: []*proctrace.Event{
				// Still running at the end of the trace.
				begin(10, 1, "sleep"),
				// Started before tracing did.
				endUsage(20, proctrace.Timestamp{Sec: 9}, &proctrace.ResourceUsage{MaxRSSKB: 9}),
				begin(30, 1, "true"),
				endUsage(30, proctrace.Timestamp{Nsec: 250000000}, &proctrace.ResourceUsage{MaxRSSKB: 7}),
			},
			want: map[string]want{
				"CPU Time":                     {1, 0.25, 0.25, 0.25, 0.25},
				"Maximum Resident Set Size":    {1, 7, 7, 7, 7},
				"Kernel Time":                  {n: 1},
				"User Time":                    {n: 1},
				"Filesystem Input Operations":  {n: 1},
				"Filesystem Output Operations": {n: 1},
				"Major Page Faults":            {n: 1},
				"Minor Page Faults":            {n: 1},
			},
		},
		{
			name: "NoUsage",
			events: []*proctrace.Event{
				begin(10, 1, "a"),
				endUsage(10, proctrace.Timestamp{Sec: 1}, nil),
				begin(11, 1, "b"),
				endUsage(11, proctrace.Timestamp{Sec: 3}, &proctrace.ResourceUsage{MaxRSSKB: 50}),
			},
			want: map[string]want{
				"CPU Time":                     {2, 1, 2, 3, 4},
				"Maximum Resident Set Size":    {1, 50, 50, 50, 50},
				"Kernel Time":                  {n: 1},
				"User Time":                    {n: 1},
				"Filesystem Input Operations":  {n: 1},
				"Filesystem Output Operations": {n: 1},
				"Major Page Faults":            {n: 1},
				"Minor Page Faults":            {n: 1},
			},
		},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			stats := computeStats(buildTree(c.events).processes())
			require.Len(t, stats, len(statAttrs))
			for _, s := range stats {
				w := c.want[s.title]
				require.Equalf(t, w.n, s.n, "%s count", s.title)
				require.InDeltaf(t, w.min, s.min, 1e-9, "%s min", s.title)
				require.InDeltaf(t, w.mean, s.mean, 1e-9, "%s mean", s.title)
				require.InDeltaf(t, w.max, s.max, 1e-9, "%s max", s.title)
				require.InDeltaf(t, w.sum, s.sum, 1e-9, "%s cumulative", s.title)
			}
		})
	}
}

func TestPrintStats(t *testing.T) {
	t.Parallel()

	stats := computeStats(buildTree([]*proctrace.Event{
		begin(10, 1, "make"),
		endUsage(10, proctrace.Timestamp{Sec: 1, Nsec: 250000000}, &proctrace.ResourceUsage{MaxRSSKB: 2048}),
	}).processes())

	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, stats))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(statAttrs)+1)
	require.Equal(t, []string{"ATTRIBUTE", "MIN", "MEAN", "MAX", "CUMULATIVE"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"CPU", "Time", "1.25s", "1.25s", "1.25s", "1.25s"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"Maximum", "Resident", "Set", "Size", "2048.00KiB", "2048.00KiB", "2048.00KiB", "2048.00KiB"},
		strings.Fields(lines[len(lines)-1]))
}
