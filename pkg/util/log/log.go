package log

import (
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is a shared go-kit logger.
// TODO: Change all components to take a non-global logger via their constructors.
// Prefer accepting a non-global logger as an argument.
var Logger = kitlog.NewNopLogger()

// InitLogger initialises the global gokit logger and returns it.
func InitLogger(logLevel string) kitlog.Logger {
	writer := kitlog.NewSyncWriter(os.Stderr)
	logger := kitlog.NewLogfmtLogger(writer)

	// use UTC timestamps and skip 5 stack frames.
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.Caller(5))

	// Must put the level filter last for efficiency.
	logger = level.NewFilter(logger, levelOption(logLevel))

	Logger = logger
	return logger
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
