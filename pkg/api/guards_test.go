package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopResumable struct{}

func (nopResumable) Advance(ctx context.Context, input any) (Step, error) {
	return Step{Done: true}, nil
}

type structDefinition struct{}

func (structDefinition) NewTask() Resumable { return nopResumable{} }

func TestIsComputation(t *testing.T) {
	require.True(t, IsComputation(Computation(func(ctx context.Context) (any, error) { return nil, nil })))
	require.True(t, IsComputation(func(ctx context.Context) (any, error) { return nil, nil }))
	require.True(t, IsComputation(func() (any, error) { return nil, nil }))
	require.True(t, IsComputation(func() error { return nil }))

	require.False(t, IsComputation(nil))
	require.False(t, IsComputation(42))
	require.False(t, IsComputation(Computation(nil)))
	require.False(t, IsComputation((func() error)(nil)))
	require.False(t, IsComputation(func(x int) error { return nil }))
	require.False(t, IsComputation((func() (int, error))(nil)))
	require.False(t, IsComputation(func(ctx context.Context, n int) (int, error) { return n, nil }))
	require.False(t, IsComputation(func(args ...context.Context) error { return nil }))
	require.False(t, IsComputation(func() (int, string) { return 0, "" }))
}

func TestAsComputation_TypedShapes(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "seen")
	boom := errors.New("boom")

	cases := map[string]struct {
		fn      any
		want    any
		wantErr error
	}{
		"value and error":      {fn: func() (int, error) { return 3, nil }, want: 3},
		"value and failure":    {fn: func() (int, error) { return 0, boom }, want: 0, wantErr: boom},
		"context and value":    {fn: func(ctx context.Context) (string, error) { return ctx.Value(ctxKey{}).(string), nil }, want: "seen"},
		"value only":           {fn: func() any { return "plain" }, want: "plain"},
		"typed value only":     {fn: func(ctx context.Context) []int { return []int{1, 2} }, want: []int{1, 2}},
		"no results":           {fn: func() {}, want: nil},
		"context error":        {fn: func(ctx context.Context) error { return boom }, wantErr: boom},
		"context error is nil": {fn: func(ctx context.Context) error { return nil }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fn, ok := AsComputation(tc.fn)
			require.True(t, ok)

			v, err := fn(ctx)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.want, v)
		})
	}
}

func TestBodyGuards(t *testing.T) {
	async := func(ctx context.Context, y Yielder) error { return nil }
	sync := func(y Yielder) error { return nil }

	require.True(t, IsAsyncBody(async))
	require.True(t, IsAsyncBody(AsyncBody(async)))
	require.False(t, IsAsyncBody(sync))
	require.False(t, IsAsyncBody(AsyncBody(nil)))

	require.True(t, IsSyncBody(sync))
	require.True(t, IsSyncBody(SyncBody(sync)))
	require.False(t, IsSyncBody(async))
	require.False(t, IsSyncBody(SyncBody(nil)))
}

func TestIsDefinition(t *testing.T) {
	require.True(t, IsDefinition(structDefinition{}))
	require.True(t, IsDefinition(DefinitionFunc(func() Resumable { return nopResumable{} })))

	require.False(t, IsDefinition(nil))
	require.False(t, IsDefinition(DefinitionFunc(nil)))
	require.False(t, IsDefinition("definition"))
}

func TestToItem(t *testing.T) {
	lit := ToItem(7)
	require.False(t, lit.Deferred())
	require.Equal(t, 7, lit.Value)

	def := ToItem(func() (any, error) { return "v", nil })
	require.True(t, def.Deferred())
	v, err := def.Evaluate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v", v)

	same := Defer(func(ctx context.Context) (any, error) { return nil, nil })
	require.True(t, ToItem(same).Deferred())

	// A nil computation degrades to a nil literal.
	require.False(t, Defer(nil).Deferred())

	typed := ToItem(func() (int, error) { return 4, nil })
	require.True(t, typed.Deferred())
	v, err = typed.Evaluate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, v)
}

func TestToItem_UnsupportedFunctionFails(t *testing.T) {
	it := ToItem(func(n int) error { return nil })
	require.True(t, it.Deferred())

	v, err := it.Evaluate(context.Background())
	require.Nil(t, v)
	require.ErrorIs(t, err, ErrUnsupportedYield)
	require.Contains(t, err.Error(), "func(int) error")

	// Nil functions stay literals.
	lit := ToItem((func(int) error)(nil))
	require.False(t, lit.Deferred())
}

func TestItem_EvaluateRecoversPanics(t *testing.T) {
	_, err := Defer(func(ctx context.Context) (any, error) { panic("kaboom") }).Evaluate(context.Background())

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Value)
	require.Equal(t, "panic: kaboom", pe.Error())

	boom := errors.New("boom")
	_, err = Defer(func(ctx context.Context) (any, error) { panic(boom) }).Evaluate(context.Background())
	require.Same(t, boom, err)
}
