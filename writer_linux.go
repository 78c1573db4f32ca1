//go:build linux
// +build linux

package proctrace

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// appendFrame writes one frame to the file at path under an exclusive lock.
func appendFrame(path string, payload []byte) (err error) {
	hdr, err := appendFrameHeader(make([]byte, 0, FrameHeaderSize), uint64(len(payload)))
	if err != nil {
		return err
	}
	if path == "" {
		return errNoOutput
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return xerrors.Errorf("open trace file: %w", err)
	}
	fd := int(f.Fd())

	err = lockExclusive(fd)
	if err != nil {
		_ = f.Close()
		return xerrors.Errorf("lock trace file: %w", err)
	}

	// Unlock and close no matter how the writes went.
	defer func() {
		var merr error
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		uerr := unix.Flock(fd, unix.LOCK_UN)
		if uerr != nil {
			merr = multierror.Append(merr, xerrors.Errorf("unlock trace file: %w", uerr))
		}
		cerr := f.Close()
		if cerr != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close trace file: %w", cerr))
		}
		err = merr
	}()

	err = writeAll(f, hdr)
	if err != nil {
		return xerrors.Errorf("write frame header: %w", err)
	}
	err = writeAll(f, payload)
	if err != nil {
		return xerrors.Errorf("write %d byte frame payload: %w", len(payload), err)
	}
	return nil
}

// lockExclusive takes an exclusive flock(2) on fd, waiting for other writers
// to finish their frame. Interrupted waits are retried; any other error is
// returned.
func lockExclusive(fd int) error {
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
