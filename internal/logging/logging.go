// Package logging is a thin wrapper over logrus, mirroring the shape of a
// logging facade used throughout production Go services: an interface so
// call sites don't depend on logrus directly, a context-carrying variant,
// and a go-logr/logr adapter for components (third-party libraries) that
// expect the logr.Logger shape instead.
package logging

import (
	"context"
	"io"

	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields so callers don't need the logrus import.
type Fields = logrus.Fields

// Logger is the interface used by every component in this repository.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(Fields) Logger
	WithContext(context.Context) Logger
	WithError(err error) Logger

	SetLevel(level string) error
	SetOutput(w io.Writer)
}

type logger struct {
	entry *logrus.Entry
}

// New returns a new Logger backed by logrus, with a text formatter suitable
// for a CLI tool's stderr (JSON is opt-in for machine consumption).
func New() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: logrus.NewEntry(l)}
}

// NewJSON returns a new Logger emitting structured JSON lines.
func NewJSON() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logger) Debugf(format string, args ...interface{})  { l.entry.Debugf(format, args...) }
func (l *logger) Info(args ...interface{})                   { l.entry.Info(args...) }
func (l *logger) Infof(format string, args ...interface{})   { l.entry.Infof(format, args...) }
func (l *logger) Warn(args ...interface{})                   { l.entry.Warn(args...) }
func (l *logger) Warnf(format string, args ...interface{})   { l.entry.Warnf(format, args...) }
func (l *logger) Error(args ...interface{})                  { l.entry.Error(args...) }
func (l *logger) Errorf(format string, args ...interface{})  { l.entry.Errorf(format, args...) }

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}

func (l *logger) WithFields(f Fields) Logger {
	return &logger{entry: l.entry.WithFields(f)}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{entry: l.entry.WithContext(ctx)}
}

func (l *logger) WithError(err error) Logger {
	return &logger{entry: l.entry.WithError(err)}
}

func (l *logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

func (l *logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// LogSink adapts a Logger to logr.LogSink, for injecting into third-party
// components (e.g. the wazero-based executor backend) that accept a
// logr.Logger rather than this package's interface.
type LogSink struct {
	L     Logger
	name  string
	kvs   []interface{}
}

var _ logr.LogSink = (*LogSink)(nil)

func NewLogSink(l Logger) *LogSink { return &LogSink{L: l} }

func (s *LogSink) Init(logr.RuntimeInfo) {}
func (s *LogSink) Enabled(int) bool      { return true }

func (s *LogSink) Info(_ int, msg string, kvs ...interface{}) {
	s.withKVs(kvs).Info(msg)
}

func (s *LogSink) Error(err error, msg string, kvs ...interface{}) {
	s.withKVs(kvs).WithError(err).Error(msg)
}

func (s *LogSink) WithValues(kvs ...interface{}) logr.LogSink {
	return &LogSink{L: s.L, name: s.name, kvs: append(append([]interface{}{}, s.kvs...), kvs...)}
}

func (s *LogSink) WithName(name string) logr.LogSink {
	n := name
	if s.name != "" {
		n = s.name + "." + name
	}
	return &LogSink{L: s.L, name: n, kvs: s.kvs}
}

func (s *LogSink) withKVs(extra []interface{}) Logger {
	l := s.L
	if s.name != "" {
		l = l.WithField("component", s.name)
	}
	all := append(append([]interface{}{}, s.kvs...), extra...)
	for i := 0; i+1 < len(all); i += 2 {
		key, ok := all[i].(string)
		if !ok {
			continue
		}
		l = l.WithField(key, all[i+1])
	}
	return l
}
