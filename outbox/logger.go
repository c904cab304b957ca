package outbox

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// LogrusLoggerAdapter routes watermill logs to logrus.
type LogrusLoggerAdapter struct {
	entry *logrus.Entry
}

func NewLogrusLoggerAdapter(entry *logrus.Entry) watermill.LoggerAdapter {
	return &LogrusLoggerAdapter{entry: entry}
}

func (l *LogrusLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l *LogrusLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *LogrusLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *LogrusLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LogrusLoggerAdapter{entry: l.entry.WithFields(logrus.Fields(fields))}
}
