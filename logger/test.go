package logger

import "sync"

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
}

type testRecorder struct {
	mu      sync.Mutex
	entries []TestLogEntry
}

// TestLogger captures log entries so tests can assert on them.
// Loggers derived via With share the same recorder.
type TestLogger struct {
	metadata map[string]interface{}
	recorder *testRecorder
}

var _ Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{recorder: &testRecorder{}}
}

// Entries returns a snapshot of the captured log entries.
func (c *TestLogger) Entries() []TestLogEntry {
	c.recorder.mu.Lock()
	defer c.recorder.mu.Unlock()
	out := make([]TestLogEntry, len(c.recorder.entries))
	copy(out, c.recorder.entries)
	return out
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{})
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, recorder: c.recorder}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	c.recorder.mu.Lock()
	c.recorder.entries = append(c.recorder.entries, TestLogEntry{severity, msg, args})
	c.recorder.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.log("ERROR", msg, args...)
}
