package httpapi

import (
	"context"
)

// predictionContext derives the context for one prediction from the request
// context. It is also canceled, with the same cause, once base is done, so a
// server shutdown stops in-flight work. Request-scoped values are preserved.
func predictionContext(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(base, func() { cancel(context.Cause(base)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
