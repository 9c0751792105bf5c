package logger

import (
	"sync"
)

// TestLogger is a Logger implementation for tests that captures all messages
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	fields   map[string]interface{}
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{
		messages: make([]LogMessage, 0),
		fields:   make(map[string]interface{}),
	}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

// WithField returns a logger that attaches the field to every message.
// Captured messages still land in the parent logger.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	child := &derivedTestLogger{parent: l, fields: fields}
	return child
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Messages returns a copy of all captured messages
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasMessage reports whether a message with the given level and text was logged
func (l *TestLogger) HasMessage(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.Level == level && m.Message == msg {
			return true
		}
	}
	return false
}

// derivedTestLogger carries extra fields but records into its parent
type derivedTestLogger struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (d *derivedTestLogger) merge(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(d.fields)+len(fields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (d *derivedTestLogger) Debug(msg string) { d.parent.log("DEBUG", msg, d.fields) }
func (d *derivedTestLogger) Info(msg string)  { d.parent.log("INFO", msg, d.fields) }
func (d *derivedTestLogger) Warn(msg string)  { d.parent.log("WARN", msg, d.fields) }
func (d *derivedTestLogger) Error(msg string) { d.parent.log("ERROR", msg, d.fields) }
func (d *derivedTestLogger) Fatal(msg string) { d.parent.log("FATAL", msg, d.fields) }

func (d *derivedTestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("DEBUG", msg, d.merge(fields))
}

func (d *derivedTestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("INFO", msg, d.merge(fields))
}

func (d *derivedTestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("WARN", msg, d.merge(fields))
}

func (d *derivedTestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("ERROR", msg, d.merge(fields))
}

func (d *derivedTestLogger) WithField(key string, value interface{}) Logger {
	return d.WithFields(map[string]interface{}{key: value})
}

func (d *derivedTestLogger) WithFields(fields map[string]interface{}) Logger {
	return &derivedTestLogger{parent: d.parent, fields: d.merge(fields)}
}

func (d *derivedTestLogger) WithError(err error) Logger {
	if err == nil {
		return d
	}
	return d.WithField("error", err.Error())
}
