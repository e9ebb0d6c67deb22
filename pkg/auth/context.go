package auth

import (
	"context"
	"errors"
)

// ErrNoCaller is returned when an operation runs without an authenticated caller.
var ErrNoCaller = errors.New("authentication required: no caller in context")

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller extracts the caller placed by the auth middleware.
func GetCaller(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(Caller)
	return caller, ok
}

// RequireCaller extracts the caller and returns ErrNoCaller if absent.
func RequireCaller(ctx context.Context) (Caller, error) {
	caller, ok := GetCaller(ctx)
	if !ok {
		return Caller{}, ErrNoCaller
	}
	return caller, nil
}
