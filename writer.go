package proctrace

import (
	"context"
	"io"

	"cdr.dev/slog"
)

// Writer appends frames to a trace file that is shared with other processes.
type Writer struct {
	// Path of the trace file. It must exist; the writer never creates or
	// truncates it. An empty path makes every Emit a no-op.
	Path string
	// Logger receives the reason a frame was not written. Optional.
	Logger *slog.Logger
}

// Emit appends payload to the trace file as one frame while holding an
// exclusive flock(2) on the file.
//
// Emit is fire-and-forget: it never returns or panics on failure. An empty
// payload, a payload larger than MaxFrameLength, a missing path, or a failure
// to open, lock or write the file all result in nothing being written.
func (w *Writer) Emit(payload []byte) {
	err := appendFrame(w.Path, payload)
	if err != nil && w.Logger != nil {
		w.Logger.Debug(context.Background(), "frame not written",
			slog.F("path", w.Path),
			slog.F("payload_len", len(payload)),
			slog.Error(err),
		)
	}
}

// Emit appends payload as one frame to the trace file named by $UPTPL_OUTPUT.
// If the variable is unset no file is touched, not even the debug log. See
// Writer.Emit.
func Emit(payload []byte) {
	cfg, err := LoadConfig()
	if err != nil || cfg.Output == "" {
		return
	}
	log, closeLog := cfg.logger()
	defer closeLog()

	w := Writer{Path: cfg.Output, Logger: &log}
	w.Emit(payload)
}

// writeAll writes b to w, retrying short writes until everything is written or
// w returns an error.
func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		b = b[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return errShortWrite
		}
	}
	return nil
}
