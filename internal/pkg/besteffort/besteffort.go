// Package besteffort runs persistence writes whose failure must be logged but
// must never fail the enclosing request.
package besteffort

import (
	"context"

	"go.uber.org/zap"
)

// Result is the outcome of a best-effort write. It is deliberately not an error
// so callers cannot return it up a hard-failure path by accident.
type Result struct {
	Op  string
	Err error
}

// OK reports whether the write went through.
func (r Result) OK() bool {
	return r.Err == nil
}

// Do runs fn once, synchronously, with the caller's context. A failure is logged
// at warn level and never retried. A cancelled context abandons the write.
func Do(ctx context.Context, logger *zap.Logger, op string, fn func(ctx context.Context) error, fields ...zap.Field) Result {
	err := fn(ctx)
	if err != nil && logger != nil {
		logger.Warn("best-effort write failed",
			append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...,
		)
	}
	return Result{Op: op, Err: err}
}
