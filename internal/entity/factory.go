// Package entity holds the nonogram domain entities. Entities validate themselves on
// construction and persist through the datastore handed to their Factory.
package entity

import (
	"time"

	"nonogram/internal/errs"
	"nonogram/internal/store"
)

// Factory builds entities bound to a datastore and an error reporter
type Factory struct {
	store    store.Datastore
	reporter errs.Reporter
}

// NewFactory creates a new entity factory
func NewFactory(ds store.Datastore, reporter errs.Reporter) *Factory {
	return &Factory{
		store:    ds,
		reporter: reporter,
	}
}

// report forwards err to the reporter and returns the normalized error
func (f *Factory) report(file, fn, message string, err interface{}) error {
	return f.reporter.Report(errs.Context{File: file, Fn: fn, Message: message}, err)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
