package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Context tags a reported error with where it happened
type Context struct {
	File    string
	Fn      string
	Message string
}

// String renders the context the way it prefixes a log line: File.Fn - Message
func (c Context) String() string {
	var b strings.Builder
	b.WriteString(c.File)
	if c.Fn != "" {
		b.WriteString(".")
		b.WriteString(c.Fn)
	}
	if c.Message != "" {
		b.WriteString(" - ")
		b.WriteString(c.Message)
	}
	return b.String()
}

// Reporter records failures. Report always returns the normalized error so the caller
// can decide whether to return it.
type Reporter interface {
	Report(ctx Context, err interface{}) error
}

// Counter is notified of every reported error
type Counter interface {
	ErrorReported(file, fn string)
}

// LogReporter reports errors as structured logrus entries
type LogReporter struct {
	logger  logrus.FieldLogger
	counter Counter
}

// NewLogReporter creates a reporter writing to logger. counter may be nil.
func NewLogReporter(logger logrus.FieldLogger, counter Counter) *LogReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogReporter{
		logger:  logger,
		counter: counter,
	}
}

// Report normalizes err, logs it with its context and returns the normalized error
func (r *LogReporter) Report(ctx Context, err interface{}) error {
	normalized := Normalize(err)

	fields := logrus.Fields{
		"file": ctx.File,
		"fn":   ctx.Fn,
		"kind": Kind(normalized),
	}
	if ctx.Message != "" {
		fields["message"] = ctx.Message
	}
	r.logger.WithFields(fields).WithError(normalized).Error(fmt.Sprintf("%s: %s", ctx, normalized))

	if r.counter != nil {
		r.counter.ErrorReported(ctx.File, ctx.Fn)
	}
	return normalized
}

// Normalize turns any value into an error
func Normalize(v interface{}) error {
	switch e := v.(type) {
	case nil:
		return errors.New("an unexpected error occurred: null")
	case error:
		return e
	case string:
		return fmt.Errorf("an unexpected error occurred: %q", e)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return errors.New("an unexpected error occurred: unable to stringify error")
	}
	return fmt.Errorf("an unexpected error occurred: %s", b)
}

// Kind names the sentinel an error wraps, for log fields and metrics
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}
