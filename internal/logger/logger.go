// Package logger provides a small leveled logging facade used across the
// client so call sites never depend on zap directly.
package logger

import (
	"go.uber.org/zap"
)

// Logger is the leveled logging surface every component logs through.
type Logger interface {
	Debug(args ...interface{})
	Debugln(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warningln(args ...interface{})
	Error(args ...interface{})
	Errorln(args ...interface{})
	Errorf(format string, args ...interface{})
}

var base = newBase()

func newBase() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op logger rather than panicking; logging must
		// never be fatal to the core.
		l = zap.NewNop()
	}
	return l.Sugar()
}

type logger struct {
	s *zap.SugaredLogger
}

// New returns a named Logger, in the call-site shape used by the session
// and CLI code (logger.New("session"), logger.New("torrent "+name)).
func New(name string) Logger {
	return &logger{s: base.Named(name)}
}

func (l *logger) Debug(args ...interface{})                 { l.s.Debug(args...) }
func (l *logger) Debugln(args ...interface{})                { l.s.Debug(args...) }
func (l *logger) Debugf(format string, args ...interface{})  { l.s.Debugf(format, args...) }
func (l *logger) Info(args ...interface{})                   { l.s.Info(args...) }
func (l *logger) Infof(format string, args ...interface{})   { l.s.Infof(format, args...) }
func (l *logger) Warningln(args ...interface{})              { l.s.Warn(args...) }
func (l *logger) Error(args ...interface{})                  { l.s.Error(args...) }
func (l *logger) Errorln(args ...interface{})                { l.s.Error(args...) }
func (l *logger) Errorf(format string, args ...interface{})  { l.s.Errorf(format, args...) }
