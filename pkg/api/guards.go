package api

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// AsComputation converts v into a Computation when it is a function that
// takes no arguments or a single context.Context and returns nothing, a
// value, an error, or a value and an error. For example:
//
//	Computation
//	func(context.Context) (any, error)
//	func() (int, error)
//	func(context.Context) string
//	func() error
//
// Nil functions are not computations.
func AsComputation(v any) (Computation, bool) {
	switch fn := v.(type) {
	case Computation:
		return fn, fn != nil
	case func(context.Context) (any, error):
		return fn, fn != nil
	case func() (any, error):
		if fn == nil {
			return nil, false
		}
		return func(context.Context) (any, error) { return fn() }, true
	case func() error:
		if fn == nil {
			return nil, false
		}
		return func(context.Context) (any, error) { return nil, fn() }, true
	}
	return reflectComputation(v)
}

func reflectComputation(v any) (Computation, bool) {
	fv := reflect.ValueOf(v)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, false
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, false
	}

	withCtx := false
	switch ft.NumIn() {
	case 0:
	case 1:
		if ft.In(0) != contextType {
			return nil, false
		}
		withCtx = true
	default:
		return nil, false
	}

	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, false
		}
	default:
		return nil, false
	}

	return func(ctx context.Context) (any, error) {
		var in []reflect.Value
		if withCtx {
			in = []reflect.Value{reflect.ValueOf(&ctx).Elem()}
		}
		out := fv.Call(in)
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			if ft.Out(0) == errorType {
				return nil, errorOf(out[0])
			}
			return out[0].Interface(), nil
		}
		return out[0].Interface(), errorOf(out[1])
	}, true
}

func errorOf(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// IsComputation reports whether v would be evaluated as a deferred
// computation when yielded.
func IsComputation(v any) bool {
	_, ok := AsComputation(v)
	return ok
}

// ToItem classifies a yielded value. A non-nil function that is not a
// computation becomes a computation failing with ErrUnsupportedYield, so the
// mistake reaches the handler instead of resuming the task with the function
// itself.
func ToItem(v any) Item {
	if it, ok := v.(Item); ok {
		return it
	}
	if fn, ok := AsComputation(v); ok {
		return Defer(fn)
	}
	if fv := reflect.ValueOf(v); fv.Kind() == reflect.Func && !fv.IsNil() {
		err := fmt.Errorf("%w: %T", ErrUnsupportedYield, v)
		return Defer(func(context.Context) (any, error) { return nil, err })
	}
	return Literal(v)
}

// AsAsyncBody reports whether v is an async-mode task body.
func AsAsyncBody(v any) (AsyncBody, bool) {
	switch fn := v.(type) {
	case AsyncBody:
		return fn, fn != nil
	case func(context.Context, Yielder) error:
		return fn, fn != nil
	}
	return nil, false
}

// IsAsyncBody reports whether v is an async-mode task body.
func IsAsyncBody(v any) bool {
	_, ok := AsAsyncBody(v)
	return ok
}

// AsSyncBody reports whether v is a sync-mode task body.
func AsSyncBody(v any) (SyncBody, bool) {
	switch fn := v.(type) {
	case SyncBody:
		return fn, fn != nil
	case func(Yielder) error:
		return fn, fn != nil
	}
	return nil, false
}

// IsSyncBody reports whether v is a sync-mode task body.
func IsSyncBody(v any) bool {
	_, ok := AsSyncBody(v)
	return ok
}

// IsDefinition reports whether v is a usable Definition.
func IsDefinition(v any) bool {
	switch d := v.(type) {
	case nil:
		return false
	case DefinitionFunc:
		return d != nil
	case Definition:
		return true
	}
	return false
}
