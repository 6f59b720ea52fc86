package task

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureError(t *testing.T) {
	t.Parallel()

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()

		te := CaptureError(errors.New("boom"))
		assert.Equal(t, "errors.errorString", te.ExceptionType)
		assert.Contains(t, te.Traceback, "boom")
	})

	t.Run("wrapped chain", func(t *testing.T) {
		t.Parallel()

		root := &url.Error{Op: "Get", URL: "http://example.invalid", Err: errors.New("dial failed")}
		err := fmt.Errorf("failed to fetch profile: %w", root)

		te := CaptureError(err)
		assert.Equal(t, "fmt.wrapError", te.ExceptionType)
		assert.Contains(t, te.Traceback, "failed to fetch profile")
		assert.Contains(t, te.Traceback, "caused by net/url.Error")
		assert.Contains(t, te.Traceback, "dial failed")
		assert.Equal(t, te, CaptureError(err), "capture is deterministic")
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, TaskError{}, CaptureError(nil))
	})
}

func TestTaskCall_RecoversPanic(t *testing.T) {
	t.Parallel()

	tk := New("tests.panics", func(ctx context.Context, args Arguments) (any, error) {
		panic("kaboom")
	})
	r := NewResult("id", tk, "default", Arguments{})

	v, err := tk.Call(context.Background(), r)
	require.Error(t, err)
	assert.Nil(t, v)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	te := CaptureError(err)
	assert.Equal(t, "github.com/phrazzld/pushtasks/internal/task.PanicError", te.ExceptionType)
	assert.Contains(t, te.Traceback, "panic: kaboom")
	assert.Contains(t, te.Traceback, "goroutine")
}
