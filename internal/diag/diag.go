// Package diag collects assembly diagnostics (info/warning/error) tagged
// with 1-based source line numbers and decides overall pass/fail.
package diag

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	multierror "github.com/hashicorp/go-multierror"
)

// Level identifies the severity of a diagnostic record.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Record is a single diagnostic. Line is 0 when no source line applies.
type Record struct {
	Level Level
	Line  int
	Msg   string
}

// String renders a Record as "<level> on line <N>: <message>". Line-less
// records drop the "on line N" clause.
func (r Record) String() string {
	if r.Line > 0 {
		return fmt.Sprintf("%s on line %d: %s", r.Level, r.Line, r.Msg)
	}
	return fmt.Sprintf("%s: %s", r.Level, r.Msg)
}

// Sink collects diagnostics and writes them to the configured outputs.
type Sink struct {
	records []Record
	errs    *multierror.Error

	out    io.Writer
	logger *log.Logger

	errColor  *color.Color
	warnColor *color.Color
}

// New creates a Sink that writes to stderr and, if logFile is non-empty,
// additionally appends every message to that file.
func New(logFile string) (*Sink, error) {
	s := &Sink{
		out:       os.Stderr,
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow),
	}
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", logFile, err)
		}
		s.logger = log.New(f, "", log.LstdFlags)
	}
	return s, nil
}

func (s *Sink) record(lvl Level, line int, format string, args ...any) {
	rec := Record{Level: lvl, Line: line, Msg: fmt.Sprintf(format, args...)}
	s.records = append(s.records, rec)
	if lvl == LevelError {
		s.errs = multierror.Append(s.errs, errors.New(rec.String()))
	}
	s.emit(rec)
}

func (s *Sink) emit(rec Record) {
	line := rec.String()
	switch rec.Level {
	case LevelError:
		fmt.Fprintln(s.out, s.errColor.Sprint(line))
	case LevelWarning:
		fmt.Fprintln(s.out, s.warnColor.Sprint(line))
	default:
		fmt.Fprintln(s.out, line)
	}
	if s.logger != nil {
		s.logger.Println(line)
	}
}

// Info reports a purely informational message; never affects HadErrors.
func (s *Sink) Info(format string, args ...any) { s.record(LevelInfo, 0, format, args...) }

// InfoAt reports an informational message tied to a source line.
func (s *Sink) InfoAt(line int, format string, args ...any) {
	s.record(LevelInfo, line, format, args...)
}

// Warning reports a warning at the given line. Warnings never fail the run.
func (s *Sink) Warning(line int, format string, args ...any) {
	s.record(LevelWarning, line, format, args...)
}

// Error reports an error at the given line (0 if unknown). Errors cause the
// overall run to report failure once both passes complete.
func (s *Sink) Error(line int, format string, args ...any) {
	s.record(LevelError, line, format, args...)
}

// HadErrors reports whether any error-level diagnostic has been recorded.
func (s *Sink) HadErrors() bool { return s.errs != nil && s.errs.Len() > 0 }

// Err returns the accumulated errors as a single error (nil if none).
func (s *Sink) Err() error {
	if s.errs == nil {
		return nil
	}
	return s.errs.ErrorOrNil()
}

// Records returns every diagnostic recorded so far, in emission order.
func (s *Sink) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Summary renders the same "N error(s) and N warning(s)" line the original
// tool prints at the end of a run.
func (s *Sink) Summary() string {
	var errs, warns int
	for _, r := range s.records {
		switch r.Level {
		case LevelError:
			errs++
		case LevelWarning:
			warns++
		}
	}
	if errs > 0 {
		return fmt.Sprintf("assembly failed with %d error(s) and %d warning(s)", errs, warns)
	}
	return fmt.Sprintf("assembly successful with %d warning(s)", warns)
}
