//go:build linux
// +build linux

package proctrace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// fakeProcDir creates a directory laid out like /proc/<pid>.
func fakeProcDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.Symlink("/usr/bin/myprog", filepath.Join(dir, "exe")))
	require.NoError(t, os.Symlink("/home/user/src", filepath.Join(dir, "cwd")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte("myprog\x00-x\x00"), 0o400))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "environ"), []byte("A=1\x00B=2\x00"), 0o400))
	return dir
}

func fakeProcess(t *testing.T, pid, ppid int) {
	t.Helper()

	oldPID, oldPPID := getpid, getppid
	getpid = func() int { return pid }
	getppid = func() int { return ppid }
	t.Cleanup(func() {
		getpid, getppid = oldPID, oldPPID
	})
}

//nolint:paralleltest // replaces getpid and getppid
func TestCaptureProcessBeginFake(t *testing.T) {
	fakeProcess(t, 1234, 1)
	log := slogtest.Make(t, nil)

	before := time.Now()
	b, err := CaptureProcessBegin(&Options{
		ProcDir: fakeProcDir(t),
		Fs:      zeroSizeFs{Fs: afero.NewOsFs(), chunk: 3},
		Logger:  &log,
	})
	require.NoError(t, err)
	after := time.Now()

	ev, err := DecodeEvent(b)
	require.NoError(t, err)
	require.Nil(t, ev.ProcessEnd)
	require.Equal(t, &ProcessBegin{
		PID:     1234,
		HasPPID: true,
		PPID:    1,
		Exe:     "/usr/bin/myprog",
		Cwd:     "/home/user/src",
		Cmdline: []string{"myprog", "-x"},
		Environ: []string{"A=1", "B=2"},
	}, ev.ProcessBegin)

	got := time.Unix(ev.Timestamp.Sec, int64(ev.Timestamp.Nsec))
	require.False(t, got.Before(before.Truncate(time.Microsecond)), "timestamp %v before %v", got, before)
	require.False(t, got.After(after), "timestamp %v after %v", got, after)
}

//nolint:paralleltest // replaces getpid
func TestCaptureProcessEndFake(t *testing.T) {
	fakeProcess(t, 4321, 1)

	b, err := CaptureProcessEnd(nil)
	require.NoError(t, err)

	ev, err := DecodeEvent(b)
	require.NoError(t, err)
	require.Nil(t, ev.ProcessBegin)
	require.Equal(t, uint32(4321), ev.ProcessEnd.PID)
	require.NotNil(t, ev.ProcessEnd.Usage)
}

//nolint:paralleltest // replaces getResUsage
func TestCaptureProcessEndWithoutUsage(t *testing.T) {
	fakeProcess(t, 4321, 1)
	old := getResUsage
	getResUsage = func() (*ResourceUsage, error) {
		return nil, errInjected
	}
	t.Cleanup(func() {
		getResUsage = old
	})

	// The failure is only logged at debug level, which slogtest accepts.
	log := slogtest.Make(t, nil).Leveled(slog.LevelDebug)
	b, err := CaptureProcessEnd(&Options{Logger: &log})
	require.NoError(t, err)

	ev, err := DecodeEvent(b)
	require.NoError(t, err)
	require.NotNil(t, ev.ProcessEnd)
	require.Equal(t, uint32(4321), ev.ProcessEnd.PID)
	require.Nil(t, ev.ProcessEnd.Usage)
	require.True(t, ev.ProcessEnd.CPUTime.Sec > 0 || ev.ProcessEnd.CPUTime.Nsec > 0, "cpu time should be kept")

	// The event still goes out.
	path := traceFile(t)
	(&Writer{Path: path, Logger: &log}).Emit(b)
	frames := readFrames(t, path)
	require.Len(t, frames, 1)
	require.Equal(t, b, frames[0])
}

func TestCaptureProcessBeginFailure(t *testing.T) {
	t.Parallel()

	for _, missing := range []string{"exe", "cwd", "cmdline", "environ"} {
		missing := missing
		t.Run(missing, func(t *testing.T) {
			t.Parallel()

			dir := fakeProcDir(t)
			require.NoError(t, os.Remove(filepath.Join(dir, missing)))

			b, err := CaptureProcessBegin(&Options{ProcDir: dir})
			require.Error(t, err)
			require.Contains(t, err.Error(), "read "+missing)
			require.True(t, xerrors.Is(err, os.ErrNotExist), "capture: %v", err)
			require.Nil(t, b)
		})
	}
}

func TestTiming(t *testing.T) {
	t.Parallel()

	ts, err := timestamp()
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), time.Unix(ts.Sec, int64(ts.Nsec)), time.Minute)
	require.Less(t, ts.Nsec, uint32(time.Second))

	// Burn some CPU so the clocks move.
	x := 0
	for i := 0; i < 1e7; i++ {
		x += i
	}
	_ = x

	cpu, err := processCPUTime()
	require.NoError(t, err)
	require.True(t, cpu.Sec > 0 || cpu.Nsec > 0, "cpu time should be positive")

	usage, err := resourceUsage()
	require.NoError(t, err)
	require.NotZero(t, usage.MaxRSSKB)
	require.Less(t, usage.UserTime.Nsec, uint32(time.Second))
}
