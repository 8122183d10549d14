package services

import (
	"context"
	"errors"

	"tally/internal/core"
)

// ActivitySink receives the outcome of every ledger action.
type ActivitySink interface {
	Record(ctx context.Context, a core.Activity) error
}

// NopSink drops every activity.
type NopSink struct{}

func (NopSink) Record(context.Context, core.Activity) error { return nil }

// MultiSink fans an activity out to several sinks. All sinks are tried; the
// errors are joined.
type MultiSink []ActivitySink

func (m MultiSink) Record(ctx context.Context, a core.Activity) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to ActivitySink.
type SinkFunc func(ctx context.Context, a core.Activity) error

func (f SinkFunc) Record(ctx context.Context, a core.Activity) error { return f(ctx, a) }
