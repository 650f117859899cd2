package remedy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setevik/autoheal/internal/fault"
)

func ok(msg string) Action {
	return func(context.Context, fault.Signal) (fault.Result, error) {
		return fault.Result{Success: true, Message: msg}, nil
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fault.KindConnectionRefused, ok("restarted")))

	a, found := r.Lookup(fault.KindConnectionRefused)
	require.True(t, found)
	require.NotNil(t, a)

	_, found = r.Lookup(fault.KindTimeout)
	assert.False(t, found)
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register("", ok("x")), ErrInvalidAction)
	assert.ErrorIs(t, r.Register(fault.KindTimeout, nil), ErrInvalidAction)
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fault.KindTimeout, ok("first")))
	require.NoError(t, r.Register(fault.KindTimeout, ok("second")))

	res := r.Run(context.Background(), fault.KindTimeout, fault.Signal{})
	assert.Equal(t, "second", res.Message)
	assert.Len(t, r.Kinds(), 1)
}

func TestRunSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fault.KindConnectionRefused, ok("restarted postgres")))

	res := r.Run(context.Background(), fault.KindConnectionRefused, fault.Signal{Text: "ECONNREFUSED"})
	assert.True(t, res.Success)
	assert.Equal(t, "restarted postgres", res.Message)
}

func TestRunUnregistered(t *testing.T) {
	r := NewRegistry()
	res := r.Run(context.Background(), fault.KindPortConflict, fault.Signal{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, ErrNoAction.Error())
}

func TestRunErrorBecomesResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fault.KindTimeout, func(context.Context, fault.Signal) (fault.Result, error) {
		return fault.Result{Success: true}, errors.New("service did not come back")
	}))

	res := r.Run(context.Background(), fault.KindTimeout, fault.Signal{})
	assert.False(t, res.Success)
	assert.Equal(t, "service did not come back", res.Message)
}

func TestRunPanicBecomesResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fault.KindTimeout, func(context.Context, fault.Signal) (fault.Result, error) {
		panic("nil map")
	}))

	var res fault.Result
	require.NotPanics(t, func() {
		res = r.Run(context.Background(), fault.KindTimeout, fault.Signal{})
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "nil map")
}

func TestRunTimeout(t *testing.T) {
	r := NewRegistry()
	r.Timeout = 20 * time.Millisecond
	require.NoError(t, r.Register(fault.KindTimeout, func(ctx context.Context, _ fault.Signal) (fault.Result, error) {
		<-ctx.Done()
		return fault.Result{}, ctx.Err()
	}))

	res := r.Run(context.Background(), fault.KindTimeout, fault.Signal{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timed out")
}

func TestKindsSorted(t *testing.T) {
	r := NewRegistry()
	for _, k := range []fault.Kind{fault.KindTimeout, fault.KindConnectionRefused, fault.KindFileMissing} {
		require.NoError(t, r.Register(k, ok("")))
	}
	assert.Equal(t, []fault.Kind{fault.KindConnectionRefused, fault.KindFileMissing, fault.KindTimeout}, r.Kinds())
}
