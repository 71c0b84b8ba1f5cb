// Package applog is the gateway's process-wide structured logger. It mirrors
// the teacher repo's internal/log package: leveled (info/debug/error) lines
// carrying a label map, gated by per-level enable switches, and silent
// inside test binaries so `go test -v` output stays readable. It does not
// reach for a third-party logging library because the teacher itself
// doesn't either for this concern — see DESIGN.md.
package applog

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	mu           sync.Mutex
	infoEnabled  = true
	debugEnabled = false
	errorEnabled = true
)

// SetLevels toggles which levels are emitted. Intended for use at startup
// from the loaded configuration or an environment override.
func SetLevels(info, debug, errorLevel bool) {
	mu.Lock()
	defer mu.Unlock()
	infoEnabled, debugEnabled, errorEnabled = info, debug, errorLevel
}

func levelEnabled(level string) bool {
	mu.Lock()
	defer mu.Unlock()
	switch level {
	case "debug":
		return debugEnabled
	case "error":
		return errorEnabled
	default:
		return infoEnabled
	}
}

// inTestBinary detects `go test` the same way the teacher does, so unit
// tests don't drown in log output.
func inTestBinary() bool {
	return flag.Lookup("test.v") != nil || flag.Lookup("test.run") != nil || flag.Lookup("test.bench") != nil
}

func emit(level, component string, labels map[string]string, format string, args ...any) {
	if !levelEnabled(level) || inTestBinary() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(labels) == 0 {
		log.Printf("%s [%s] %s", strings.ToUpper(level), component, msg)
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, labels[k])
	}
	log.Printf("%s [%s] %s%s", strings.ToUpper(level), component, msg, b.String())
}

// Info logs at info level.
func Info(component string, labels map[string]string, format string, args ...any) {
	emit("info", component, labels, format, args...)
}

// Debug logs at debug level (disabled by default).
func Debug(component string, labels map[string]string, format string, args ...any) {
	emit("debug", component, labels, format, args...)
}

// Error logs at error level.
func Error(component string, labels map[string]string, format string, args ...any) {
	emit("error", component, labels, format, args...)
}

// Fatal logs at error level and exits the process with status 1. Used only
// for startup failures (spec.md §6: non-zero exit on config unreadable or no
// healthy endpoint after bootstrap).
func Fatal(component string, labels map[string]string, format string, args ...any) {
	emit("error", component, labels, format, args...)
	os.Exit(1)
}
