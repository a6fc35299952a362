package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Detach keeps ctx values (request/trace data) but drops its cancellation,
// for work that must finish after the HTTP request returns.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(Default(ctx))
}
