package shell

import (
	"bytes"
	"errors"
	"testing"

	"cio-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthyRenderPassesThrough(t *testing.T) {
	b := NewBoundary("v1", logger.Nop())

	out, err := b.Render(func() (any, error) { return "tree", nil })
	require.NoError(t, err)
	assert.Equal(t, "tree", out)
	assert.Equal(t, Healthy, b.State())

	plain := errors.New("not fatal")
	_, err = b.Render(func() (any, error) { return nil, plain })
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, Healthy, b.State())
}

func TestPanicFaultsPermanently(t *testing.T) {
	var buf bytes.Buffer
	b := NewBoundary("v1", logger.New(logger.Config{Level: "error", JSON: true, Output: &buf}))

	out, err := b.Render(func() (any, error) { panic("nil map write") })
	require.NoError(t, err)

	screen, ok := out.(RecoveryScreen)
	require.True(t, ok)
	assert.Equal(t, "Something went wrong", screen.Title)
	assert.Equal(t, "reload", screen.Action)
	assert.Equal(t, "nil map write", screen.Fault)
	assert.Equal(t, Faulted, b.State())
	assert.Contains(t, buf.String(), `"view_id":"v1"`)

	called := false
	out, err = b.Render(func() (any, error) {
		called = true
		return "tree", nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, screen, out)
}

func TestFaultErrorFaults(t *testing.T) {
	b := NewBoundary("v2", logger.Nop())

	out, err := b.Render(func() (any, error) {
		return nil, &Fault{Err: errors.New("corrupt message list")}
	})
	require.NoError(t, err)
	assert.Equal(t, "corrupt message list", out.(RecoveryScreen).Fault)
	assert.Equal(t, Faulted, b.State())
}

func TestFreshBoundaryIsHealthy(t *testing.T) {
	b := NewBoundary("v3", logger.Nop())
	_, _ = b.Render(func() (any, error) { panic("boom") })

	reloaded := NewBoundary("v3", logger.Nop())
	assert.Equal(t, Healthy, reloaded.State())
}
