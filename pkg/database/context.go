package database

import (
	"context"
	"errors"
)

type contextKey string

const (
	// ScopeKey is the context key for storing the request-scoped database connection.
	ScopeKey contextKey = "dbScope"
	// TxKey is the context key for storing an open transaction.
	TxKey contextKey = "dbTx"
)

// ErrNoScope is returned when a repository runs without a connection in context.
var ErrNoScope = errors.New("no database scope in context")

// GetScope retrieves the request-scoped database connection from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok && scope != nil
}

// SetScope stores the request-scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// GetQuerier returns the open transaction if there is one, otherwise the
// request connection. Repositories call this for every statement so that work
// started inside WithinTx joins the transaction.
func GetQuerier(ctx context.Context) (Querier, error) {
	if tx, ok := ctx.Value(TxKey).(Querier); ok && tx != nil {
		return tx, nil
	}
	if scope, ok := GetScope(ctx); ok && scope.Conn != nil {
		return scope.Conn, nil
	}
	return nil, ErrNoScope
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(TxKey).(Querier)
	return ok && tx != nil
}
