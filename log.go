package proctrace

import (
	"os"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"cdr.dev/slog/sloggers/slogjson"
)

// logStderr is the LogEnv value that sends debug logs to stderr.
const logStderr = "stderr"

func discardLogger() slog.Logger {
	return slog.Make()
}

// logger returns the debug logger selected by c.Log and a func that flushes
// and closes its destination. Logs to a file are JSON lines. Any problem
// opening the log falls back to discarding.
func (c Config) logger() (slog.Logger, func()) {
	switch c.Log {
	case "":
		return discardLogger(), func() {}
	case logStderr:
		return slog.Make(sloghuman.Sink(os.Stderr)).Leveled(slog.LevelDebug).Named("proctrace"), func() {}
	}

	f, err := os.OpenFile(c.Log, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return discardLogger(), func() {}
	}
	log := slog.Make(slogjson.Sink(f)).Leveled(slog.LevelDebug).Named("proctrace")
	return log, func() {
		log.Sync()
		_ = f.Close()
	}
}
