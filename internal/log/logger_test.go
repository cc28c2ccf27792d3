package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newBufferedLogger(level logrus.Level, pattern string) (*logrusAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: pattern, time: "2006-01-02 15:04:05"})
	l.SetLevel(level)
	l.SetOutput(&buf)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, &buf
}

func TestFormatterPattern(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "hello",
	}
	f := &formatter{pattern: "%time [%level] %msg\n", time: "2006-01-02 15:04:05"}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	got := string(out)
	if got != "2026-01-02 03:04:05 [info] hello\n" {
		t.Errorf("Format() = %q", got)
	}
}

func TestFormatterFields(t *testing.T) {
	f := &formatter{pattern: "%level %field %msg", time: "15:04:05"}
	entry := &logrus.Entry{
		Level:   logrus.WarnLevel,
		Message: "m",
		Data:    logrus.Fields{"stream": "a->b"},
	}
	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if !strings.Contains(string(out), "stream=a->b") {
		t.Errorf("Format() = %q; want fields rendered", string(out))
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(logrus.WarnLevel, "%level %msg\n")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("messages below warn level were not filtered")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("warn/error messages missing from output")
	}
}

func TestWithFieldChaining(t *testing.T) {
	logger, buf := newBufferedLogger(logrus.InfoLevel, "%field %msg\n")

	logger.WithField("session", "s1").WithError(errors.New("boom")).Error("failed")

	output := buf.String()
	if !strings.Contains(output, "session=s1") {
		t.Errorf("output %q missing session field", output)
	}
	if !strings.Contains(output, "boom") {
		t.Errorf("output %q missing chained error", output)
	}
}

func TestLevelProbes(t *testing.T) {
	logger, _ := newBufferedLogger(logrus.InfoLevel, "%msg\n")
	if logger.IsDebugEnabled() {
		t.Error("IsDebugEnabled() = true at info level")
	}
	if !logger.IsInfoEnabled() {
		t.Error("IsInfoEnabled() = false at info level")
	}
}

func TestGetEntryExposesLogrus(t *testing.T) {
	logger, _ := newBufferedLogger(logrus.InfoLevel, "%msg\n")
	if _, ok := logger.GetEntry().(*logrus.Entry); !ok {
		t.Error("GetEntry() did not return a *logrus.Entry")
	}
}
