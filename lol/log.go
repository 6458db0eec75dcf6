// Package lol (log of location) prints a timestamp, a level tag and the source
// location of each log line. Lines above the current level are dropped, and
// every line is written in one call so concurrent handlers do not interleave.
package lol

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"go.uber.org/atomic"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var LevelNames = []string{"off", "fatal", "error", "warn", "info", "debug", "trace"}

type (
	// Ln prints its arguments separated by spaces.
	Ln func(a ...any)
	// F prints a formatted line.
	F func(format string, a ...any)
	// S prints a spew dump of its arguments.
	S func(a ...any)
	// Chk prints a non-nil error and reports whether there was one.
	Chk func(e error) bool
	// Err builds an error with fmt.Errorf, so %w works, and logs it.
	Err func(format string, a ...any) error

	// LevelPrinter is the set of printers of one level.
	LevelPrinter struct {
		Ln
		F
		S
		Chk
		Err
	}
)

// levelTags are the colored tags of each level.
var levelTags = [...]string{
	Off:   "",
	Fatal: color.New(color.BgRed, color.FgHiWhite).Sprint("FTL"),
	Error: color.New(color.FgHiRed).Sprint("ERR"),
	Warn:  color.New(color.FgHiYellow).Sprint("WRN"),
	Info:  color.New(color.FgHiGreen).Sprint("INF"),
	Debug: color.New(color.FgHiBlue).Sprint("DBG"),
	Trace: color.New(color.FgHiMagenta).Sprint("TRC"),
}

var (
	// NoTimeStomp disables the timestamp prefix, for tests and for supervisors
	// that stamp lines themselves.
	NoTimeStomp atomic.Bool
	// Level is the highest level printed.
	Level atomic.Int32
	// Main is the process logger the log, chk and errorf packages point at.
	Main = &Logger{}
)

// Log is a set of printers for each level.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the Chk printer of each level.
type Check struct {
	F, E, W, I, D, T Chk
}

// Errorf is the Err printer of each level.
type Errorf struct {
	F, E, W, I, D, T Err
}

// Logger bundles the printers of all levels with their output.
type Logger struct {
	*Log
	*Check
	*Errorf
	out *sink
}

// sink serializes writes to one writer that may be swapped at runtime.
type sink struct {
	sync.Mutex
	w io.Writer
}

func (s *sink) write(l int, text string) {
	var b strings.Builder
	if !NoTimeStomp.Load() {
		b.WriteString(locCol(time.Now().Format("2006-01-02T15:04:05.000Z07:00 ")))
	}
	b.WriteString(levelTags[l])
	b.WriteByte(' ')
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteByte(' ')
	b.WriteString(locCol(location(3)))
	b.WriteByte('\n')
	s.Lock()
	_, _ = io.WriteString(s.w, b.String())
	s.Unlock()
}

func init() {
	*Main = *New(os.Stderr)
	SetLoggers(Info)
}

// SetOutput redirects the logger to w.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.Lock()
	l.out.w = w
	l.out.Unlock()
}

// SetLoggers sets the highest printed level, out of range levels mean Info.
func SetLoggers(level int) {
	if level < Off || level > Trace {
		level = Info
	}
	Level.Store(int32(level))
	Main.Log.T.F("log level %s", LevelNames[level])
}

// GetLogLevel returns the number of a level name, Info for unknown names.
func GetLogLevel(level string) (i int) {
	level = strings.ToLower(strings.TrimSpace(level))
	for i = range LevelNames {
		if level == LevelNames[i] {
			return i
		}
	}
	return Info
}

// SetLogLevel sets the level by name.
func SetLogLevel(level string) { SetLoggers(GetLogLevel(level)) }

var locCol = color.New(color.FgBlue).Sprint

func printer(s *sink, l int) LevelPrinter {
	on := func() bool { return Level.Load() >= int32(l) }
	return LevelPrinter{
		Ln: func(a ...any) {
			if on() {
				s.write(l, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
			}
		},
		F: func(format string, a ...any) {
			if on() {
				s.write(l, fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...any) {
			if on() {
				s.write(l, spew.Sdump(a...))
			}
		},
		Chk: func(e error) bool {
			if e == nil {
				return false
			}
			if on() {
				s.write(l, e.Error())
			}
			return true
		},
		Err: func(format string, a ...any) error {
			err := fmt.Errorf(format, a...)
			if on() {
				s.write(l, err.Error())
			}
			return err
		},
	}
}

// New creates a logger writing to w.
func New(w io.Writer) *Logger {
	s := &sink{w: w}
	l := &Log{
		T: printer(s, Trace),
		D: printer(s, Debug),
		I: printer(s, Info),
		W: printer(s, Warn),
		E: printer(s, Error),
		F: printer(s, Fatal),
	}
	return &Logger{
		Log:    l,
		Check:  &Check{F: l.F.Chk, E: l.E.Chk, W: l.W.Chk, I: l.I.Chk, D: l.D.Chk, T: l.T.Chk},
		Errorf: &Errorf{F: l.F.Err, E: l.E.Err, W: l.W.Err, I: l.I.Err, D: l.D.Err, T: l.T.Err},
		out:    s,
	}
}

// location is the file and line of the caller skip frames up.
func location(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	return fmt.Sprintf("%s:%d", file, line)
}
