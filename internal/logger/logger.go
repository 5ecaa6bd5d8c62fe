package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger writes JSON lines. Derived loggers from WithField share the output
// and level of their parent.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

func New() *Logger {
	return NewWithWriter(os.Stdout)
}

func NewWithWriter(writer io.Writer) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	base.SetOutput(writer)
	base.SetLevel(logrus.InfoLevel)
	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

// SetLevel accepts debug, info, warn or error. Unknown names leave the level unchanged.
func (l *Logger) SetLevel(name string) {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		l.entry.Warnf("unknown log level %q, keeping %s", name, l.base.GetLevel())
		return
	}
	l.base.SetLevel(level)
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *Logger) Info(v ...interface{}) {
	l.entry.Info(v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

func (l *Logger) Warn(v ...interface{}) {
	l.entry.Warn(v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.entry.Error(v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}
