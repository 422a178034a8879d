package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/secvault/internal/logging"
)

// TestLogger captures log output for validation in tests.
//
// Example usage:
//
//	logger := NewTestLogger(t, true)
//	vault := securevault.New(securevault.Options{Logger: logger.Logger()})
//	...
//	logger.AssertRedacted(t, "wso2carbon")
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *logging.Logger
}

// NewTestLogger creates a capturing logger in plain (no color) mode.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	l := &TestLogger{}
	l.logger = logging.NewWithWriter(l, debug, true)
	return l
}

// Write implements io.Writer for the wrapped logger.
func (l *TestLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.Write(p)
}

// Logger returns the logger to hand to the code under test.
func (l *TestLogger) Logger() *logging.Logger {
	return l.logger
}

// GetOutput returns everything logged so far.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertRedacted asserts that secretValue never appears in the log output.
func (l *TestLogger) AssertRedacted(t *testing.T, secretValue string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), secretValue,
		"Secret value %q should be redacted, but appears in logs", secretValue)
}

// Lines returns the non-empty log lines.
func (l *TestLogger) Lines() []string {
	var result []string
	for _, line := range strings.Split(l.GetOutput(), "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
