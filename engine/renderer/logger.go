package renderer

import (
	"context"
	"fmt"
	"log/slog"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// contractChecker reports programmer errors. With panicOnViolation set it panics with an
// error wrapping ErrContractViolation; otherwise the violation is logged and the caller
// refuses the operation.
type contractChecker struct {
	log              *slog.Logger
	panicOnViolation bool
}

// violation reports a contract violation. It always returns false so call sites can
// write `return c.violation(...)` from boolean operations.
func (c *contractChecker) violation(format string, args ...any) bool {
	err := fmt.Errorf("%w: "+format, append([]any{ErrContractViolation}, args...)...)
	if c.panicOnViolation {
		panic(err)
	}
	c.log.Warn("renderer: refused call", "error", err)
	return false
}
