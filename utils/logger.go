package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorReset  = "\033[0m"
)

// Logger provides leveled logging throughout the application.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewLogger creates a Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{out: os.Stdout, err: os.Stderr}
}

func (l *Logger) log(w io.Writer, color, level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "[%s] %s%-5s%s %s\n", ts, color, level, colorReset,
		fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.log(l.out, colorGreen, "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(l.out, colorYellow, "WARN", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(l.err, colorRed, "ERROR", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(l.out, colorCyan, "DEBUG", format, args...)
}
