package proctrace

import (
	"context"

	"cdr.dev/slog"
)

// OnProcessBegin captures a process begin event for the current process and
// appends it to the trace file named by $UPTPL_OUTPUT. It must be called once,
// as early as possible in the life of the process.
//
// OnProcessBegin never fails and never panics. If no trace file is configured
// it returns without reading anything.
func OnProcessBegin() {
	runHook("process_begin", CaptureProcessBegin)
}

// OnProcessEnd captures a process end event for the current process and
// appends it to the trace file named by $UPTPL_OUTPUT. It must be called once,
// as late as possible in the life of the process. Like OnProcessBegin it never
// fails.
func OnProcessEnd() {
	runHook("process_end", CaptureProcessEnd)
}

func runHook(event string, capture func(*Options) ([]byte, error)) {
	// Whatever happens in here must not take the host process down with it.
	defer func() {
		_ = recover()
	}()

	cfg, err := LoadConfig()
	if err != nil || cfg.Output == "" {
		return
	}
	log, closeLog := cfg.logger()
	defer closeLog()
	log = log.With(slog.F("event", event))

	data, err := capture(&Options{Logger: &log})
	if err != nil {
		log.Debug(context.Background(), "capture failed", slog.Error(err))
		return
	}

	w := Writer{Path: cfg.Output, Logger: &log}
	w.Emit(data)
}
