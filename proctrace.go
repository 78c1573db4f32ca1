// Package proctrace records the beginning and the end of a process as binary
// events appended to a shared trace file.
//
// A hook layer calls OnProcessBegin once when the host process starts and
// OnProcessEnd once when it exits. Each call captures metadata about the
// current process from /proc, encodes it as a protobuf event and appends it to
// the file named by $UPTPL_OUTPUT as a frame:
//
//	| "upt0" | u32 big-endian length | event |
//
// Many unrelated processes may append to the same file; an exclusive flock(2)
// around each frame keeps frames from interleaving. Nothing in this package
// ever reports a failure to the host process: a failed capture or write is
// only visible as a missing event in the trace.
package proctrace

import (
	"cdr.dev/slog"
	"github.com/spf13/afero"
)

// DefaultProcDir is the directory that metadata about the current process is
// read from.
const DefaultProcDir = "/proc/self"

// Options configure event capture. All are optional.
type Options struct {
	// ProcDir is a /proc/<pid> style directory containing the exe and cwd
	// symlinks and the cmdline and environ files. Defaults to DefaultProcDir.
	ProcDir string

	// Fs is used to read the cmdline and environ files. Defaults to the OS
	// filesystem.
	Fs afero.Fs

	// Logger receives debug logs about failed captures. Defaults to a logger
	// without sinks.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.ProcDir == "" {
		opts.ProcDir = DefaultProcDir
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		l := discardLogger()
		opts.Logger = &l
	}
	return opts
}

// Timestamp is a point in time or a duration with nanosecond resolution.
type Timestamp struct {
	Sec  int64  `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

// Event is a decoded trace event. Exactly one of ProcessBegin and ProcessEnd
// is set.
type Event struct {
	Timestamp    Timestamp     `json:"timestamp"`
	ProcessBegin *ProcessBegin `json:"process_begin,omitempty"`
	ProcessEnd   *ProcessEnd   `json:"process_end,omitempty"`
}

// ProcessBegin describes a process when it started.
type ProcessBegin struct {
	PID     uint32 `json:"pid"`
	HasPPID bool   `json:"has_ppid"`
	PPID    uint32 `json:"ppid"`
	Exe     string `json:"exe"`
	Cwd     string `json:"cwd"`
	// Cmdline and Environ keep the order of /proc/<pid>/cmdline and
	// /proc/<pid>/environ.
	Cmdline []string `json:"cmdline"`
	Environ []string `json:"environ"`
}

// ProcessEnd describes a process when it exited.
type ProcessEnd struct {
	PID     uint32    `json:"pid"`
	CPUTime Timestamp `json:"cpu_time"`
	// Usage is nil if the resource usage of the process could not be read.
	Usage *ResourceUsage `json:"usage,omitempty"`
}

// ResourceUsage is a getrusage(2) snapshot of a process.
type ResourceUsage struct {
	UserTime               Timestamp `json:"user_time"`
	SysTime                Timestamp `json:"sys_time"`
	MaxRSSKB               uint64    `json:"max_rss_kb"`
	MinorFaults            uint64    `json:"min_flt"`
	MajorFaults            uint64    `json:"maj_flt"`
	InBlock                uint64    `json:"in_block"`
	OutBlock               uint64    `json:"ou_block"`
	VoluntaryCtxSwitches   uint64    `json:"nvcsw"`
	InvoluntaryCtxSwitches uint64    `json:"nivcsw"`
}
