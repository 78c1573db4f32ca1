//go:build linux
// +build linux

package proctrace

import (
	"context"
	"os"
	"path/filepath"

	"cdr.dev/slog"
	"golang.org/x/xerrors"
)

// These are variables so tests can pretend to be a different process.
var (
	getpid      = os.Getpid
	getppid     = os.Getppid
	getResUsage = resourceUsage
)

// CaptureProcessBegin builds and encodes a process begin event for the process
// described by opts.ProcDir (the current process by default). Failing to read
// any piece of metadata fails the whole event.
func CaptureProcessBegin(opts *Options) ([]byte, error) {
	o := opts.withDefaults()

	a := newArena()
	// The arena is handed to encodeEvent on success, which releases it. Any
	// earlier return releases it here.
	ok := false
	defer func() {
		if !ok {
			_ = a.Release()
		}
	}()

	ts, err := timestamp()
	if err != nil {
		return nil, err
	}

	rec := &beginRecord{
		pid:  uint32(getpid()),
		ppid: uint32(getppid()),
	}
	rec.exe, err = readSymlink(filepath.Join(o.ProcDir, "exe"), a)
	if err != nil {
		return nil, xerrors.Errorf("read exe: %w", err)
	}
	rec.cwd, err = readSymlink(filepath.Join(o.ProcDir, "cwd"), a)
	if err != nil {
		return nil, xerrors.Errorf("read cwd: %w", err)
	}
	rec.cmdline, err = readStringList(o.Fs, filepath.Join(o.ProcDir, "cmdline"), a)
	if err != nil {
		return nil, xerrors.Errorf("read cmdline: %w", err)
	}
	rec.environ, err = readStringList(o.Fs, filepath.Join(o.ProcDir, "environ"), a)
	if err != nil {
		return nil, xerrors.Errorf("read environ: %w", err)
	}

	ok = true
	return encodeEvent(&eventRecord{
		timestamp: ts,
		begin:     rec,
	}, a)
}

// CaptureProcessEnd builds and encodes a process end event for the current
// process. The resource usage block is left out if getrusage fails.
func CaptureProcessEnd(opts *Options) ([]byte, error) {
	o := opts.withDefaults()

	a := newArena()
	ok := false
	defer func() {
		if !ok {
			_ = a.Release()
		}
	}()

	ts, err := timestamp()
	if err != nil {
		return nil, err
	}
	cpu, err := processCPUTime()
	if err != nil {
		return nil, err
	}

	rec := &endRecord{
		pid:     uint32(getpid()),
		cpuTime: cpu,
	}
	rec.usage, err = getResUsage()
	if err != nil {
		o.Logger.Debug(context.Background(), "resource usage unavailable, omitting", slog.Error(err))
	}

	ok = true
	return encodeEvent(&eventRecord{
		timestamp: ts,
		end:       rec,
	}, a)
}
