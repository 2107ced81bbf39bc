// Package service holds what the booking, waitlist and kiosk services share.
package service

import (
	"context"
	"errors"
	"fmt"

	"salonsched/backend/internal/store"
)

// ValidationError is a caller mistake. The message is safe to return verbatim.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func Invalid(msg string) error {
	return &ValidationError{msg: msg}
}

func Invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// RetryTransient runs fn and, if it fails with store.ErrTransient, runs it
// once more. A second transient failure is reported as store.ErrInternal.
func RetryTransient(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, store.ErrTransient) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	err = fn(ctx)
	if errors.Is(err, store.ErrTransient) {
		return fmt.Errorf("%w: %v", store.ErrInternal, err)
	}
	return err
}
