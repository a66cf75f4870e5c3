// Package logging configures the shared logrus logger: a compact custom
// format for the console and optional rotated file output.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var setupOnce sync.Once

// Formatter renders entries as
// [2026-03-01 12:00:04] [debug] message key=value.
type Formatter struct{}

// Format renders a single log entry.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	buffer.WriteString(fmt.Sprintf("[%s] [%-5s] %s",
		entry.Time.Format("2006-01-02 15:04:05"),
		level,
		strings.TrimRight(entry.Message, "\r\n")))

	for key, value := range entry.Data {
		buffer.WriteString(fmt.Sprintf(" %s=%v", key, value))
	}
	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

// SetupBaseLogger installs the formatter and default level. Safe to call
// more than once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetFormatter(&Formatter{})
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})
}

// SetDebug toggles debug-level logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// EnableFileOutput mirrors log output into a rotated file under dir in
// addition to stderr.
func EnableFileOutput(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir failed: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "authbridge.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return nil
}
