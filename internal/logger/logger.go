package logger

import (
	"io"
	stdlog "log"
	"os"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Verbose bool
	JSON    bool
	Out     io.Writer
}

// New builds the process logger. Human-readable text by default, JSON with
// Options.JSON, debug level with Options.Verbose.
func New(opts Options) *logrus.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
	}
	if opts.JSON {
		formatter = &logrus.JSONFormatter{}
	}

	level := logrus.InfoLevel
	if opts.Verbose {
		level = logrus.DebugLevel
	}

	return &logrus.Logger{
		Out:       out,
		Formatter: formatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	return New(Options{Out: io.Discard})
}

// CaptureStdLog sends everything written to the standard library logger into
// log at debug level. Some dependencies (httpbackoff retries) print there
// directly. The returned func restores the previous output.
func CaptureStdLog(log *logrus.Logger) (restore func()) {
	w := log.WriterLevel(logrus.DebugLevel)
	prevOut, prevFlags, prevPrefix := stdlog.Writer(), stdlog.Flags(), stdlog.Prefix()

	stdlog.SetOutput(w)
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")

	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
		w.Close()
	}
}
