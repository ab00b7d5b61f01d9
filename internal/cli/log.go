// Logging for the morphkit CLI.
//
// Commands log through the CLI's charmbracelet/log logger, which is also
// attached to the command context so helpers without access to the CLI
// can reach it. Decode warnings are logged at warn level; --verbose
// enables the runner's debug output (fetch sources, cache decisions).

package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/morphkit/pkg/morph"
)

// newLogger creates a logger with timestamps formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, e.g. "Converted 12 files (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// logWarnings reports decode warnings for one input.
func logWarnings(l *log.Logger, name string, warnings []morph.Warning) {
	for _, w := range warnings {
		if w.Offset > 0 {
			l.Warn(w.Message, "file", name, "offset", w.Offset)
		} else {
			l.Warn(w.Message, "file", name)
		}
	}
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default() when
// none is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
