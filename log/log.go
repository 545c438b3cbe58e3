package log

import (
	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/config"
)

var (
	debug bool
	level = logrus.InfoLevel
)

func init() {
	cfg := config.LoadOrDefault()
	debug = cfg.Debug
	if l, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		level = l
	}
}

// GetLogger returns a new logger instance
func GetLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns a logger that discards everything below panic level.
func Silent() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Component returns a logger entry tagged with component kind and name.
func Component(l logrus.FieldLogger, kind, name string) logrus.FieldLogger {
	if l == nil {
		l = GetLogger()
	}
	return l.WithField(kind, name)
}
