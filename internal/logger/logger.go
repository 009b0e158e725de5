/**
 * @description
 * Structured logger for VitalChain Backend.
 * Info and warnings go to stdout, errors to stderr, so hosting platforms classify them correctly.
 *
 * @dependencies
 * - standard "log"
 */

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// InfoLogger writes to stdout
	InfoLogger *log.Logger
	// ErrorLogger writes to stderr (for actual errors)
	ErrorLogger *log.Logger
)

func init() {
	InfoLogger = log.New(os.Stdout, "", log.LstdFlags)
	ErrorLogger = log.New(os.Stderr, "", log.LstdFlags)
}

// SetOutput redirects both loggers, mostly useful for tests that assert on log lines.
func SetOutput(info, errs io.Writer) {
	InfoLogger.SetOutput(info)
	ErrorLogger.SetOutput(errs)
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	InfoLogger.Println(fmt.Sprintf(format, v...))
}

// Warn logs a non-fatal problem to stdout with a WARN prefix
func Warn(format string, v ...interface{}) {
	InfoLogger.Println("WARN " + fmt.Sprintf(format, v...))
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	ErrorLogger.Println("ERROR " + fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	ErrorLogger.Fatalln("FATAL " + fmt.Sprintf(format, v...))
}
