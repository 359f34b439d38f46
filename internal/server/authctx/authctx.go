// Package authctx carries the operator of a request. There is no login; the
// operator id comes from the X-User-ID header and only labels activity entries.
package authctx

import "context"

type contextKey string

const operatorContextKey contextKey = "operator"

type Operator struct {
	ID int64
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

func FromContext(ctx context.Context) *Operator {
	val, ok := ctx.Value(operatorContextKey).(Operator)
	if !ok {
		return nil
	}
	return &val
}
