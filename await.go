package perform

import (
	"context"

	"github.com/jfet97/perform/pkg/api"
)

// Await yields fn as a deferred computation and returns the value the task
// is resumed with. ok is false when that value is not a T, which happens
// when the handler recovered with a value of another type (or with nil).
//
//	user, ok := perform.Await(y, func(ctx context.Context) (User, error) {
//	    return repo.Load(ctx, id)
//	})
func Await[T any](y Yielder, fn func(ctx context.Context) (T, error)) (T, bool) {
	v := y.Yield(api.Computation(func(ctx context.Context) (any, error) {
		return fn(ctx)
	}))
	out, ok := v.(T)
	return out, ok
}

// Must is like Await but returns the zero T when the resume value is not
// a T.
func Must[T any](y Yielder, fn func(ctx context.Context) (T, error)) T {
	out, _ := Await(y, fn)
	return out
}
