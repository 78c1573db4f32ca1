package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"cdr.dev/proctrace"
)

func main() {
	err := rootCmd().Execute()
	if err != nil {
		log.Fatalf("failed to run command: %+v", err)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proctrace",
		Short: "proctrace inspects trace files written by processes running with the proctrace hooks.",
	}
	cmd.AddCommand(dumpCmd(), pstreeCmd(), statsCmd())
	return cmd
}

func dumpCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "dump <trace>",
		Short: "Print every event in a trace file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != "text" && outputFormat != "json" {
				return xerrors.Errorf(`output format must be "text" or "json", got %q`, outputFormat)
			}
			return dump(args[0], cmd.OutOrStdout(), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "f", "text", "Output format, text or json")
	return cmd
}

func pstreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pstree <trace>",
		Short: "Print the tree of processes recorded in a trace file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(args[0])
			if err != nil {
				return err
			}
			buildTree(events).print(cmd.OutOrStdout())
			return nil
		},
	}
}

// forEachEvent calls fn with every decodable event in the trace file. Frames
// that fail to decode are logged and skipped.
func forEachEvent(path string, fn func(*proctrace.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("open trace: %w", err)
	}
	defer f.Close()

	r := proctrace.NewReader(f)
	for {
		payload, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("trace ends with a truncated frame: %v", err)
				return nil
			}
			return xerrors.Errorf("read frame: %w", err)
		}
		event, err := proctrace.DecodeEvent(payload)
		if err != nil {
			log.Printf("skipping undecodable frame: %+v", err)
			continue
		}

		err = fn(event)
		if err != nil {
			return err
		}
	}
}

func readEvents(path string) ([]*proctrace.Event, error) {
	var events []*proctrace.Event
	err := forEachEvent(path, func(event *proctrace.Event) error {
		events = append(events, event)
		return nil
	})
	return events, err
}

func dump(path string, w io.Writer, outputFormat string) error {
	enc := json.NewEncoder(w)
	return forEachEvent(path, func(event *proctrace.Event) error {
		if outputFormat == "json" {
			err := enc.Encode(event)
			if err != nil {
				return xerrors.Errorf("write event as JSON: %w", err)
			}
			return nil
		}

		_, err := fmt.Fprintln(w, formatEvent(event))
		return err
	})
}

func formatTimestamp(t proctrace.Timestamp) string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}

func formatEvent(event *proctrace.Event) string {
	ts := formatTimestamp(event.Timestamp)
	switch {
	case event.ProcessBegin != nil:
		b := event.ProcessBegin
		return fmt.Sprintf("%s begin [%v, ppid=%v, exe=%q, cwd=%q] %v",
			ts, b.PID, b.PPID, b.Exe, b.Cwd, shellquote.Join(b.Cmdline...))
	case event.ProcessEnd != nil:
		e := event.ProcessEnd
		line := fmt.Sprintf("%s end   [%v] cpu=%ss", ts, e.PID, formatTimestamp(e.CPUTime))
		if u := e.Usage; u != nil {
			line += fmt.Sprintf(" user=%ss sys=%ss max_rss=%vKiB min_flt=%v maj_flt=%v in_block=%v ou_block=%v nvcsw=%v nivcsw=%v",
				formatTimestamp(u.UserTime), formatTimestamp(u.SysTime), u.MaxRSSKB,
				u.MinorFaults, u.MajorFaults, u.InBlock, u.OutBlock,
				u.VoluntaryCtxSwitches, u.InvoluntaryCtxSwitches)
		}
		return line
	}
	return ts + " unknown"
}
