package log

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled-logging interface consumed by filter/merge/snapshot:
// every call site here either reports a recoverable error via WithError, or
// tags a log line with structured fields via WithFields, before Warn/Error.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	WithError(error) Logger
	WithFields(Fields) Logger
}

type loggerKey struct{}

// Fields is an alias so that callers only need to know about this package.
type Fields = logrus.Fields

type wrapper struct {
	*logrus.Entry
}

// FromLogrusLogger converts a logrus.Logger into Logger.
func FromLogrusLogger(l *logrus.Logger) Logger {
	return &wrapper{logrus.NewEntry(l)}
}

// ToLogrusEntry converts a Logger into a logrus.Entry. Useful for testing.
func ToLogrusEntry(l Logger) (*logrus.Entry, error) {
	wrapper, ok := l.(*wrapper)
	if !ok {
		return nil, errors.New("base logger is not a wrapper")
	}

	return wrapper.Entry, nil
}

func (w *wrapper) WithError(err error) Logger {
	return &wrapper{w.Entry.WithError(err)}
}

func (w *wrapper) WithFields(f Fields) Logger {
	return &wrapper{w.Entry.WithFields(f)}
}

// WithLogger stashes logger (already tagged with the per-Apply/per-Run
// correlation id — see snapshot.Update.Apply and snapshot.CommitRetry.Run)
// onto ctx, so anything downstream that only has a context can recover the
// same correlation-tagged logger instead of building its own.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type logOptions struct {
	ctx context.Context
}

type logOpt func(o *logOptions)

// WithContext returns a GetLogger option that makes it return the logger
// stashed on ctx by WithLogger, if present.
func WithContext(ctx context.Context) logOpt {
	return func(o *logOptions) {
		o.ctx = ctx
	}
}

// GetLogger returns the logger previously stashed on a context via
// WithLogger (WithContext), or a fresh one off the standard logrus logger
// otherwise. The constructors snapshot.New and snapshot.NewCommitRetry fall
// back to this when they are handed a nil Logger.
func GetLogger(opts ...logOpt) Logger {
	cfg := &logOptions{ctx: context.Background()}
	for _, o := range opts {
		o(cfg)
	}

	if loggerInterface := cfg.ctx.Value(loggerKey{}); loggerInterface != nil {
		if lgr, ok := loggerInterface.(Logger); ok {
			return lgr
		}
	}

	return &wrapper{logrus.NewEntry(logrus.StandardLogger())}
}
