// Package console is the kernel's sole output sink; no package here
// writes through the standard library's log/slog, and the internal
// subsystems produce no log output at all. The console is a byte sink
// over whatever device backs boot
// output (UART, video, a host pipe in tests), and that device is out of
// core scope; only this interface is.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level controls which Printf/Logf calls actually reach the sink, a
// single package-level log-level switch rather than a context-threaded
// logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

var (
	mu     sync.Mutex
	sink   io.Writer = os.Stdout
	level            = LevelInfo
)

// SetSink redirects console output; used by tests to capture writes.
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

// SetLevel changes the minimum level that reaches the sink.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Printf writes an unconditional, unformatted-by-level line to the console,
// supporting the %s %d %u %x %p %c %f %% verbs plus width and l/ll/z length
// modifiers via translateFormat, matching a freestanding console_printf
// surface.
func Printf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, translateFormat(format), args...)
}

// Logf writes a leveled line, suppressed if below the current level.
func Logf(l Level, format string, args ...any) {
	mu.Lock()
	cur := level
	mu.Unlock()
	if l < cur {
		return
	}
	Printf("["+levelName(l)+"] "+format, args...)
}

func Debugf(format string, args ...any) { Logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { Logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { Logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { Logf(LevelError, format, args...) }

func levelName(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

// translateFormat rewrites %u (unsigned) verbs and strips l/ll/z length
// modifiers that Go's fmt doesn't recognize, since this console is written
// against a C-style printf surface. Width and the remaining verbs (%s %d
// %x %p %c %f %%) pass through fmt.Fprintf as-is.
func translateFormat(format string) string {
	if !strings.ContainsAny(format, "ulzh") {
		return format
	}
	var b strings.Builder
	b.Grow(len(format))
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		// Copy '%' plus any flag/width digits verbatim.
		b.WriteByte('%')
		i++
		for i < len(format) && (format[i] == '-' || format[i] == '0' || (format[i] >= '1' && format[i] <= '9')) {
			b.WriteByte(format[i])
			i++
		}
		// Drop C length modifiers; Go's fmt has no use for them.
		for i < len(format) && (format[i] == 'l' || format[i] == 'z' || format[i] == 'h') {
			i++
		}
		if i >= len(format) {
			break
		}
		if format[i] == 'u' {
			b.WriteByte('d') // unsigned decimal: Go's %d covers both.
		} else {
			b.WriteByte(format[i])
		}
	}
	return b.String()
}
