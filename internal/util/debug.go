package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	debugLogger *log.Logger
	debugFile   *os.File
	mu          sync.Mutex
)

// InitDebugLogger opens the debug file and initializes the logger.
// A filename of "-" logs to stderr.
func InitDebugLogger(filename string) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	var f *os.File
	if filename != "-" {
		var err error
		f, err = os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w = f
	}

	// Release the previous target, if any.
	if debugFile != nil {
		debugFile.Close()
	}
	debugFile = f
	debugLogger = log.New(w, "[rrf] ", log.LstdFlags|log.Lmicroseconds)
	return nil
}

// CloseDebugLogger closes the file handle and disables debug output.
func CloseDebugLogger() {
	mu.Lock()
	defer mu.Unlock()
	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
	}
	debugLogger = nil
}

// DebugEnabled reports whether Debug writes anywhere.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugLogger != nil
}

// Debug logs a message if the logger is initialized
func Debug(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if debugLogger != nil {
		debugLogger.Output(2, fmt.Sprintf(format, args...))
	}
}
