package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/polydawn/gist/api"
)

/*
	Configure a logrus logger the way the CLI wants it.

	verbosity 0 is info, 1 is debug, 2 or more is trace (with caller reporting).
	The `DEBUG=1` environment variable raises the floor to debug.
*/
func NewLogger(out io.Writer, verbosity int) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("DEBUG") == "1" && verbosity < 1 {
		verbosity = 1
	}
	switch {
	case verbosity >= 2:
		logger.SetLevel(logrus.TraceLevel)
		logger.SetReportCaller(true)
	case verbosity == 1:
		logger.SetLevel(logrus.DebugLevel)
	}
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logger.SetFormatter(formatter)
	return logger
}

// caller formats the log caller as `/path/to/file.go:line_number`, relative to the cwd.
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

/*
	Drain a monitor channel into a logrus logger until the channel is closed.

	Log events map onto logrus levels and their details become fields.
	Progress events are logged at trace.  Result events are ignored;
	the CLI renders those itself.

	Returns a channel that closes once draining is finished, so the owner of
	the monitor can close it and then wait for every event to be flushed.
*/
func Drain(logger *logrus.Logger, ch <-chan api.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			switch {
			case ev.Log != nil:
				entry := logger.WithTime(ev.Log.Time)
				for _, kv := range ev.Log.Detail {
					entry = entry.WithField(kv[0], kv[1])
				}
				entry.Log(logrusLevel(ev.Log.Level), ev.Log.Msg)
			case ev.Progress != nil:
				logger.WithFields(logrus.Fields{
					"phase": ev.Progress.Phase,
					"done":  ev.Progress.TotalProg,
					"total": ev.Progress.TotalWork,
				}).Trace(ev.Progress.Desc)
			}
		}
	}()
	return done
}

func logrusLevel(lvl api.LogLevel) logrus.Level {
	switch lvl {
	case api.LogError:
		return logrus.ErrorLevel
	case api.LogWarn:
		return logrus.WarnLevel
	case api.LogInfo:
		return logrus.InfoLevel
	case api.LogDebug:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
