package logger

import (
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup sends log output to stderr and, when path is set, to a rotated file
func Setup(path string, maxSizeMB, maxBackups int) io.Closer {
	if path == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}

// Debug logs a debug message with consistent format
// Format: [DEBUG] timestamp=... user_id=... action=... details=...
func Debug(userID int64, action, details string) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[DEBUG] timestamp=%s user_id=%d action=%s details=%s", timestamp, userID, action, details)
}

// Error logs a failed operation in the same format as Debug
func Error(userID int64, action string, err error) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[ERROR] timestamp=%s user_id=%d action=%s error=%v", timestamp, userID, action, err)
}
