package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultTimeFormat = "2006-01-02 15:04:05"

// Logger is a leveled printf-style logger. A nil *Logger discards everything.
type Logger struct {
	mu     *sync.Mutex
	writer io.Writer
	exit   func(code int)

	Name  string
	Level LogLevel

	TimeFormat string
	File       string
	NoColor    bool
	JSON       bool
	NoTerminal bool
	Rotation   LoggerRotation
}

// LoggerRotation is handed to lumberjack when File is set.
// Sizes are in megabytes, ages in days.
type LoggerRotation struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// DefaultRotation keeps five 128 MB files for at most 16 days.
var DefaultRotation = LoggerRotation{
	MaxSize:    128,
	MaxBackups: 5,
	MaxAge:     16,
}

// Options configure the outputs of a Logger created with New.
type Options struct {
	File       string
	NoTerminal bool
	NoColor    bool
	JSON       bool
	TimeFormat string
	Rotation   *LoggerRotation
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Logger    string `json:"logger,omitempty"`
	Message   string `json:"message"`
}

// New creates a logger writing to stdout, the rotated file in opts.File, or both.
func New(name string, level LogLevel, opts Options) *Logger {
	l := &Logger{
		mu:         &sync.Mutex{},
		exit:       os.Exit,
		Name:       name,
		Level:      level,
		TimeFormat: opts.TimeFormat,
		File:       opts.File,
		NoColor:    opts.NoColor,
		JSON:       opts.JSON,
		NoTerminal: opts.NoTerminal,
		Rotation:   DefaultRotation,
	}
	if l.TimeFormat == "" {
		l.TimeFormat = defaultTimeFormat
	}
	if opts.Rotation != nil {
		l.Rotation = *opts.Rotation
	}

	l.writer = l.openWriters()
	return l
}

// NewWriterLogger creates a logger that writes plain text into w.
func NewWriterLogger(name string, level LogLevel, w io.Writer) *Logger {
	return &Logger{
		mu:         &sync.Mutex{},
		writer:     w,
		exit:       os.Exit,
		Name:       name,
		Level:      level,
		NoColor:    true,
		NoTerminal: true,
		TimeFormat: defaultTimeFormat,
	}
}

// NewNopLogger returns a logger that discards every message.
func NewNopLogger() *Logger {
	return NewWriterLogger("", Fatal+1, io.Discard)
}

func (l *Logger) openWriters() io.Writer {
	if l.File == "" {
		return os.Stdout
	}

	file := &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.Rotation.MaxSize,
		MaxBackups: l.Rotation.MaxBackups,
		MaxAge:     l.Rotation.MaxAge,
		Compress:   l.Rotation.Compress,
	}
	if l.NoTerminal {
		return file
	}
	return io.MultiWriter(os.Stdout, file)
}

// format renders one line without the trailing newline.
func (l *Logger) format(level LogLevel, timestamp, msg string) string {
	if l.JSON {
		line, _ := json.Marshal(logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Logger:    l.Name,
			Message:   msg,
		})
		return string(line)
	}

	line := fmt.Sprintf("[%s] %-5s", timestamp, level)
	if l.Name != "" {
		line += " [" + l.Name + "]"
	}
	line += " " + msg

	if l.colorEnabled() {
		return Color(level) + line + colorReset
	}
	return line
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if l == nil || level < l.Level {
		return
	}

	line := l.format(level, time.Now().Format(l.TimeFormat), fmt.Sprintf(msg, args...))

	l.mu.Lock()
	fmt.Fprintln(l.writer, line)
	l.mu.Unlock()

	if level == Fatal {
		l.exit(1)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}

// Fatal logs msg and terminates the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(Fatal, msg, args...)
}

// Named returns a child logger sharing the writer, called "<parent>/<name>".
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}

	child := *l
	if l.Name != "" {
		child.Name = l.Name + "/" + name
	} else {
		child.Name = name
	}
	return &child
}
