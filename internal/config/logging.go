package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr and JSON to logFile. When the file cannot
// be opened only stderr is used. The returned func closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	file, err := openLogFile(logFile)
	if err != nil {
		logger := slog.New(textHandler(os.Stderr, level))
		logger.Error("open log file, using stderr only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}
	return SetupLoggerWithWriters(os.Stderr, file, level), file.Close
}

// SetupFileLogger logs JSON to logFile only, for commands whose terminal
// belongs to a full-screen UI. Logs are discarded when the file cannot be
// opened.
func SetupFileLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	file, err := openLogFile(logFile)
	if err != nil {
		return slog.New(slog.DiscardHandler), func() error { return nil }
	}
	return slog.New(jsonHandler(file, level)), file.Close
}

// SetupLoggerWithWriters fans out to a text handler on stderr and a JSON
// handler on file.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(textHandler(stderr, level), jsonHandler(file, level)))
}

func textHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// jsonHandler tags every record with the program name so a shared log file
// can be filtered.
func jsonHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}).
		WithAttrs([]slog.Attr{slog.String("component", "codechat")})
}

func openLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
