package ros

import (
	modular "github.com/edwinhayes/logrus-modular"

	"github.com/openrobots-dev/urosnode/internal/rlog"
)

// Logger is the per-node logging facade handed back by Node.Logger(). It
// mirrors the subset of *modular.ModuleLogger's API user callbacks actually
// reach for, so swapping the backing implementation never touches call
// sites outside this package.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
}

// defaultLogger adapts a *modular.ModuleLogger (the node-wide "ros" module
// logger rlog.For hands out) to the Logger interface.
type defaultLogger struct {
	entry *modular.ModuleLogger
}

// NewDefaultLogger returns the node's logger, backed by the same
// logrus+logrus-modular stack every other package in this module logs
// through.
func NewDefaultLogger() Logger {
	return &defaultLogger{entry: rlog.For("ros")}
}

func (l *defaultLogger) Debug(v ...interface{})                 { (*l.entry).Debug(v...) }
func (l *defaultLogger) Debugf(format string, v ...interface{})  { (*l.entry).Debugf(format, v...) }
func (l *defaultLogger) Info(v ...interface{})                   { (*l.entry).Info(v...) }
func (l *defaultLogger) Infof(format string, v ...interface{})   { (*l.entry).Infof(format, v...) }
func (l *defaultLogger) Warn(v ...interface{})                   { (*l.entry).Warn(v...) }
func (l *defaultLogger) Warnf(format string, v ...interface{})   { (*l.entry).Warnf(format, v...) }
func (l *defaultLogger) Error(v ...interface{})                  { (*l.entry).Error(v...) }
func (l *defaultLogger) Errorf(format string, v ...interface{})  { (*l.entry).Errorf(format, v...) }
func (l *defaultLogger) Fatal(v ...interface{})                  { (*l.entry).Fatal(v...) }
func (l *defaultLogger) Fatalf(format string, v ...interface{})  { (*l.entry).Fatalf(format, v...) }
