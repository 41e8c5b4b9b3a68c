package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Fanout duplicates each record across several destination handlers, so a
// single slog.Logger can feed the console, the match log file and the OTel
// exporter at once.
type Fanout struct {
	dests []slog.Handler
}

// NewFanout builds a Fanout over the non-nil destinations.
func NewFanout(dests ...slog.Handler) *Fanout {
	f := &Fanout{dests: make([]slog.Handler, 0, len(dests))}
	for _, d := range dests {
		if d != nil {
			f.dests = append(f.dests, d)
		}
	}
	return f
}

// Enabled reports whether at least one destination accepts records at level.
func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, d := range f.dests {
		if d.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to every destination enabled for its level.
// A failing destination does not block the others.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, d := range f.dests {
		if !d.Enabled(ctx, r.Level) {
			continue
		}
		if err := d.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs applies the attributes to every destination.
func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.dests))
	for i, d := range f.dests {
		next[i] = d.WithAttrs(attrs)
	}
	return &Fanout{dests: next}
}

// WithGroup opens the group on every destination.
func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	next := make([]slog.Handler, len(f.dests))
	for i, d := range f.dests {
		next[i] = d.WithGroup(name)
	}
	return &Fanout{dests: next}
}
