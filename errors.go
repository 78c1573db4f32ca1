package proctrace

import (
	"runtime"

	"golang.org/x/xerrors"
)

var (
	errArenaReleased  = xerrors.New("arena is released")
	errNoPayload      = xerrors.New("event has no payload")
	errTwoPayloads    = xerrors.New("event has both a process begin and a process end payload")
	errNoTimestamp    = xerrors.New("event has no timestamp")
	errEmptyFrame     = xerrors.New("frame payload is empty")
	errFrameTooLarge  = xerrors.New("frame payload exceeds the maximum frame length")
	errNoOutput       = xerrors.New("no output path configured")
	errShortWrite     = xerrors.New("write made no progress")
	errUnknownMagic   = xerrors.New("unknown frame magic")
	errSizeMismatch   = xerrors.New("serialized event size does not match computed size")
	errUnsupportedOS  = xerrors.Errorf(`%q is an unsupported OS, only "linux" is supported`, runtime.GOOS)
	errNotSymlinkPath = xerrors.New("symlink path is empty")
)

// Suppress unused variable errors. These variables are used in files that are
// not included in all builds.
var (
	_ = errUnsupportedOS
	_ = errNotSymlinkPath
	_ = errNoOutput
)
