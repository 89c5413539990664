package asset

import (
	"context"
	"errors"
)

// Sink consumes drained asset documents.
type Sink interface {
	Consume(ctx context.Context, docs []Document) error
}

// MultiSink hands documents to every sink in order. All sinks are attempted;
// their errors are joined.
type MultiSink []Sink

// Consume implements Sink.
func (m MultiSink) Consume(ctx context.Context, docs []Document) error {
	var errs []error
	for _, s := range m {
		if err := s.Consume(ctx, docs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, docs []Document) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, docs []Document) error {
	return f(ctx, docs)
}
