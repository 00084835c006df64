package logger_test

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		log    func(*logger.Logger)
		golden string
	}{
		{
			name:   "info",
			log:    func(l *logger.Logger) { l.Info("session started") },
			golden: "info_basic",
		},
		{
			name:   "multiline info",
			log:    func(l *logger.Logger) { l.Info("line1\nline2") },
			golden: "info_multiline",
		},
		{
			name:   "warn",
			log:    func(l *logger.Logger) { l.Warn("retrying api/login (attempt 2)") },
			golden: "warn_basic",
		},
		{
			name: "debug when verbose",
			log: func(l *logger.Logger) {
				l.SetVerbose(true)
				l.Debug("resource db initialized")
			},
			golden: "debug_verbose",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			tt.log(lg)

			g := goldie.New(t)
			g.Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func TestLogger_DebugHiddenByDefault(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Debug("noise")
	assert.Empty(t, buf.String())

	lg.SetVerbose(true)
	lg.SetVerbose(false)
	lg.Debug("noise")
	assert.Empty(t, buf.String())
}

func TestLogger_Error(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		golden string
	}{
		{
			name:   "stdlib error",
			err:    os.ErrPermission,
			golden: "error_simple",
		},
		{
			name:   "two level chain",
			err:    zerr.Wrap(errors.New("underlying cause"), "wrapped message"),
			golden: "error_chain_two",
		},
		{
			name: "metadata on main error",
			err: func() error {
				err := zerr.Wrap(errors.New("connection refused"), "shared resource initialization failed")
				err = zerr.With(err, "resource", "global/db")
				err = zerr.With(err, "attempt", 3)
				return err
			}(),
			golden: "error_metadata_main",
		},
		{
			name: "joined errors",
			err: errors.Join(
				zerr.With(zerr.New("hook failed"), "hook", "stop-db"),
				errors.New("disk full"),
			),
			golden: "error_joined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func TestLogger_ErrorNil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	err := zerr.With(zerr.Wrap(errors.New("exit status 1"), "test failed"), "test", "api/login")
	lg.Error(err)

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"error"`)
	assert.Contains(t, out, "test failed")
	assert.Contains(t, out, "api/login")
	assert.NotContains(t, out, "✗")

	buf.Reset()
	lg.SetJSON(false)
	lg.Error(errors.New("back to pretty"))
	assert.Equal(t, "✗ Error: back to pretty\n", buf.String())
}

func TestLogger_SetOutputNil(t *testing.T) {
	require.NotPanics(t, func() {
		lg := logger.New().(*logger.Logger)
		lg.SetOutput(nil)
	})
}

func TestLogger_ConcurrentAccess(t *testing.T) {
	lg, buf := newTestLogger(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			lg.Info("info")
			lg.Warn("warn")
			lg.Error(errors.New("error"))
		})
	}
	wg.Go(func() { lg.SetJSON(false) })
	wg.Wait()

	assert.Contains(t, buf.String(), "info")
}
