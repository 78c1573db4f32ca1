//go:build linux
// +build linux

package proctrace

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

func clockTime(clock int32) (Timestamp, error) {
	var ts unix.Timespec
	err := unix.ClockGettime(clock, &ts)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{
		Sec:  int64(ts.Sec),
		Nsec: uint32(ts.Nsec),
	}, nil
}

// timestamp returns the current wall clock time.
func timestamp() (Timestamp, error) {
	t, err := clockTime(unix.CLOCK_REALTIME)
	if err != nil {
		return Timestamp{}, xerrors.Errorf("read realtime clock: %w", err)
	}
	return t, nil
}

// processCPUTime returns the CPU time consumed by all threads of the process.
func processCPUTime() (Timestamp, error) {
	t, err := clockTime(unix.CLOCK_PROCESS_CPUTIME_ID)
	if err != nil {
		return Timestamp{}, xerrors.Errorf("read process cpu clock: %w", err)
	}
	return t, nil
}

func timevalToTimestamp(tv unix.Timeval) Timestamp {
	return Timestamp{
		Sec:  int64(tv.Sec),
		Nsec: uint32(tv.Usec) * 1000,
	}
}

// resourceUsage returns the getrusage(2) counters of the process.
func resourceUsage() (*ResourceUsage, error) {
	var ru unix.Rusage
	err := unix.Getrusage(unix.RUSAGE_SELF, &ru)
	if err != nil {
		return nil, xerrors.Errorf("getrusage: %w", err)
	}
	return rusageToResourceUsage(&ru), nil
}

func rusageToResourceUsage(ru *unix.Rusage) *ResourceUsage {
	return &ResourceUsage{
		UserTime: timevalToTimestamp(ru.Utime),
		SysTime:  timevalToTimestamp(ru.Stime),
		// ru_maxrss is already in KiB on Linux.
		MaxRSSKB:               uint64(ru.Maxrss),
		MinorFaults:            uint64(ru.Minflt),
		MajorFaults:            uint64(ru.Majflt),
		InBlock:                uint64(ru.Inblock),
		OutBlock:               uint64(ru.Oublock),
		VoluntaryCtxSwitches:   uint64(ru.Nvcsw),
		InvoluntaryCtxSwitches: uint64(ru.Nivcsw),
	}
}
