package log

import "os"

const colorReset = "\033[0m"

var levelColors = map[LogLevel]string{
	Debug: "\033[34m",
	Info:  "\033[32m",
	Warn:  "\033[33m",
	Error: "\033[31m",
	Fatal: "\033[35m",
}

// Color returns the ANSI escape sequence used for lines of level l.
func Color(l LogLevel) string {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return colorReset
}

// colorEnabled reports whether terminal output may carry escape sequences.
// Rotated log files never receive them and NO_COLOR disables them globally.
func (l *Logger) colorEnabled() bool {
	if l.NoTerminal || l.NoColor || l.File != "" {
		return false
	}
	_, disabled := os.LookupEnv("NO_COLOR")
	return !disabled
}
