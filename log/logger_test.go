package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("s3fs", Warn, &buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Messages below Warn must be dropped, got %q", out)
	}
	if !strings.Contains(out, "WARN  [s3fs] warn 3") {
		t.Errorf("Expected warn line, got %q", out)
	}
	if !strings.Contains(out, "ERROR [s3fs] error 4") {
		t.Errorf("Expected error line, got %q", out)
	}
}

func TestLogger_Named(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("s3fs", Debug, &buf).Named("mount")
	l.JSON = true

	l.Info("Stat: %s", "s3://a")

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if entry.Logger != "s3fs/mount" {
		t.Errorf("Expected logger s3fs/mount, got %q", entry.Logger)
	}
	if entry.Message != "Stat: s3://a" {
		t.Errorf("Unexpected message %q", entry.Message)
	}
}

func TestLogger_Fatal(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("", Debug, &buf)

	code := -1
	l.exit = func(c int) { code = c }
	l.Fatal("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("warning"); err != nil || l != Warn {
		t.Errorf("Expected Warn, got %v (%v)", l, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Info("must not panic")
	if l.Named("x") != nil {
		t.Errorf("Expected nil child of nil logger")
	}
}

func TestLogger_Color(t *testing.T) {
	t.Setenv("NO_COLOR", "")

	tests := map[string]struct {
		logger   *Logger
		expected bool
	}{
		"terminal":    {&Logger{}, true},
		"no terminal": {&Logger{NoTerminal: true}, false},
		"no color":    {&Logger{NoColor: true}, false},
		"file":        {&Logger{File: "s3fs.log"}, false},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			if got := test.logger.colorEnabled(); got {
				tst.Errorf("Expected NO_COLOR to disable colors")
			}
		})
	}

	os.Unsetenv("NO_COLOR")
	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			if got := test.logger.colorEnabled(); got != test.expected {
				tst.Errorf("Expected %v, got %v", test.expected, got)
			}
		})
	}

	if Color(Error) != "\033[31m" || Color(Fatal+1) != colorReset {
		t.Errorf("Unexpected level colors")
	}
}

func TestLogger_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "s3fs.log")
	l := New("s3fs", Info, Options{
		File:       file,
		NoTerminal: true,
		JSON:       true,
		Rotation:   &LoggerRotation{MaxSize: 1, MaxBackups: 1},
	})

	l.Named("reconcile").Info("Refresh: %d files", 3)

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if entry.Logger != "s3fs/reconcile" || entry.Message != "Refresh: 3 files" || entry.Level != "INFO" {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if l.Rotation.MaxSize != 1 || l.TimeFormat != defaultTimeFormat {
		t.Errorf("Unexpected logger settings %+v", l)
	}
}
