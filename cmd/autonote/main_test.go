package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("serve: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("invalid configuration")))
}

type ctxKey struct{}

func TestRun_DelegatesToExecute(t *testing.T) {
	wantErr := errors.New("boom")
	original := execute
	t.Cleanup(func() { execute = original })

	var gotCtx context.Context
	execute = func(ctx context.Context) error {
		gotCtx = ctx
		return wantErr
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	assert.ErrorIs(t, run(ctx), wantErr)
	assert.Equal(t, ctx, gotCtx)
}

func TestHandlePanic(t *testing.T) {
	originalWrite, originalExit := osWriteFile, osExit
	t.Cleanup(func() { osWriteFile, osExit = originalWrite, originalExit })

	t.Run("WritesPanicLog", func(t *testing.T) {
		var written string
		var code int
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = string(data)
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("editor vanished")
		}()

		assert.Equal(t, 2, code)
		assert.True(t, strings.HasPrefix(written, "panic: editor vanished"))
		assert.Contains(t, written, "goroutine")
	})

	t.Run("WriteFailureStillExits", func(t *testing.T) {
		var code int
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("again")
		}()
		require.Equal(t, 2, code)
	})

	t.Run("NoPanic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}
