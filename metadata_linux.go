//go:build linux
// +build linux

package proctrace

import (
	"bytes"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const (
	// symlinkGuess is the initial buffer size for symlink targets.
	symlinkGuess = 256
	// fileGuess is the initial buffer size for pseudo-files. Files in /proc
	// report a size of zero, so the size can't be taken from stat.
	fileGuess = 4096
)

// readSymlink returns the target of the symlink at path. The returned slice is
// owned by the arena.
func readSymlink(path string, a *arena) ([]byte, error) {
	if path == "" {
		return nil, errNotSymlinkPath
	}

	size := symlinkGuess
	for {
		buf := getBuffer(size)
		n, err := unix.Readlink(path, buf.b)
		if err != nil {
			buf.Release()
			return nil, xerrors.Errorf("readlink %q: %w", path, err)
		}

		// If the target filled the buffer up to the last byte it may have
		// been truncated, so only a strictly shorter result is trusted.
		if n+1 < len(buf.b) {
			err = a.Add(buf)
			if err != nil {
				return nil, err
			}
			return buf.b[:n], nil
		}

		buf.Release()
		size *= 2
	}
}

// readFile reads the whole file at path. The size reported by stat is ignored
// because it is zero for most of /proc. The returned slice is owned by the
// arena.
func readFile(fs afero.Fs, path string, a *arena) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	buf, err := a.Buffer(fileGuess)
	if err != nil {
		return nil, err
	}

	pos := 0
	for {
		n, err := f.Read(buf.b[pos:])
		pos += n
		if xerrors.Is(err, io.EOF) || (n == 0 && err == nil) {
			return buf.b[:pos], nil
		}
		if err != nil {
			return nil, xerrors.Errorf("read %q: %w", path, err)
		}

		if pos == len(buf.b) {
			buf.grow()
		}
	}
}

// readStringList reads a NUL separated list of strings such as
// /proc/self/cmdline. A final entry that is not terminated is dropped.
func readStringList(fs afero.Fs, path string, a *arena) (stringList, error) {
	data, err := readFile(fs, path, a)
	if err != nil {
		return stringList{}, err
	}
	return splitStringList(data), nil
}

// splitStringList indexes the complete NUL terminated entries of data without
// copying them.
func splitStringList(data []byte) stringList {
	count := bytes.Count(data, []byte{0})
	list := stringList{
		data:  data,
		spans: make([]span, 0, count),
	}

	pos := 0
	for i := 0; i < count; i++ {
		end := pos + bytes.IndexByte(data[pos:], 0)
		list.spans = append(list.spans, span{off: pos, n: end - pos})
		pos = end + 1
	}
	return list
}
