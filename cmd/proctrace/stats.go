package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cdr.dev/proctrace"
)

// statAttr is a per-process value summarized by the stats command.
type statAttr struct {
	title string
	unit  string
	// value reports false if the end event does not carry the value.
	value func(e *proctrace.ProcessEnd) (float64, bool)
}

func seconds(t proctrace.Timestamp) float64 {
	return float64(t.Sec) + float64(t.Nsec)/1e9
}

func usageAttr(title, unit string, fn func(u *proctrace.ResourceUsage) float64) statAttr {
	return statAttr{
		title: title,
		unit:  unit,
		value: func(e *proctrace.ProcessEnd) (float64, bool) {
			if e.Usage == nil {
				return 0, false
			}
			return fn(e.Usage), true
		},
	}
}

var statAttrs = []statAttr{
	{
		title: "CPU Time",
		unit:  "s",
		value: func(e *proctrace.ProcessEnd) (float64, bool) {
			return seconds(e.CPUTime), true
		},
	},
	usageAttr("Kernel Time", "s", func(u *proctrace.ResourceUsage) float64 { return seconds(u.SysTime) }),
	usageAttr("User Time", "s", func(u *proctrace.ResourceUsage) float64 { return seconds(u.UserTime) }),
	usageAttr("Filesystem Input Operations", "", func(u *proctrace.ResourceUsage) float64 { return float64(u.InBlock) }),
	usageAttr("Filesystem Output Operations", "", func(u *proctrace.ResourceUsage) float64 { return float64(u.OutBlock) }),
	usageAttr("Major Page Faults", "", func(u *proctrace.ResourceUsage) float64 { return float64(u.MajorFaults) }),
	usageAttr("Minor Page Faults", "", func(u *proctrace.ResourceUsage) float64 { return float64(u.MinorFaults) }),
	usageAttr("Maximum Resident Set Size", "KiB", func(u *proctrace.ResourceUsage) float64 { return float64(u.MaxRSSKB) }),
}

// summary aggregates one attribute over all processes. All values are zero if
// no process carried the attribute.
type summary struct {
	title string
	unit  string
	n     int
	min   float64
	mean  float64
	max   float64
	sum   float64
}

// computeStats summarizes every process that has both a begin and an end
// event.
func computeStats(procs []*process) []summary {
	out := make([]summary, len(statAttrs))
	for i, attr := range statAttrs {
		s := summary{title: attr.title, unit: attr.unit}
		for _, p := range procs {
			if p.begin == nil || p.end == nil {
				continue
			}
			v, ok := attr.value(p.end)
			if !ok {
				continue
			}
			if s.n == 0 || v < s.min {
				s.min = v
			}
			if s.n == 0 || v > s.max {
				s.max = v
			}
			s.sum += v
			s.n++
		}
		if s.n > 0 {
			s.mean = s.sum / float64(s.n)
		}
		out[i] = s
	}
	return out
}

func printStats(w io.Writer, stats []summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ATTRIBUTE\tMIN\tMEAN\tMAX\tCUMULATIVE")
	for _, s := range stats {
		_, _ = fmt.Fprintf(tw, "%s\t%.2f%s\t%.2f%s\t%.2f%s\t%.2f%s\n",
			s.title, s.min, s.unit, s.mean, s.unit, s.max, s.unit, s.sum, s.unit)
	}
	return tw.Flush()
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <trace>...",
		Short: "Print min, mean, max and cumulative resource usage of the processes in trace files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var procs []*process
			for _, path := range args {
				events, err := readEvents(path)
				if err != nil {
					return err
				}
				// PIDs are only meaningful within one trace.
				procs = append(procs, buildTree(events).processes()...)
			}
			return printStats(cmd.OutOrStdout(), computeStats(procs))
		},
	}
}
