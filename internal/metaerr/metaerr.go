// Package metaerr attaches structured key/value metadata to errors so that it
// can be logged as attributes at the point where the error is handled.
package metaerr

import (
	"errors"
)

type metaError struct {
	err  error
	meta []any
}

func (e *metaError) Error() string {
	return e.err.Error()
}

func (e *metaError) Unwrap() error {
	return e.err
}

// WithMetadata wraps err and records the given alternating key/value pairs.
// A nil err yields nil.
func WithMetadata(err error, kv ...any) error {
	if err == nil {
		return nil
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "!MISSING")
	}
	return &metaError{err: err, meta: kv}
}

// GetMetadata returns all metadata found along the error chain, outermost
// first, suitable for passing to slog.Logger.With.
func GetMetadata(err error) []any {
	var meta []any
	for err != nil {
		var me *metaError
		if !errors.As(err, &me) {
			break
		}
		meta = append(meta, me.meta...)
		err = me.err
	}
	return meta
}
