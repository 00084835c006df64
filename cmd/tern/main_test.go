package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/grindlemire/graft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/adapters/linear"
	"go.trai.ch/tern/internal/app"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports/mocks"
	"go.trai.ch/tern/internal/engine"
	"go.uber.org/mock/gomock"
)

const suiteYAML = `version: "1"
name: smoke
tests:
  - id: hello
    cmd: ["sh", "-c", "echo hello"]
  - id: goodbye
    cmd: ["sh", "-c", "echo goodbye"]
    dependsOn: [hello]
`

func TestRun(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		args         []string
		expectedExit int
	}{
		{
			name:         "passing suite",
			config:       suiteYAML,
			args:         []string{"run"},
			expectedExit: 0,
		},
		{
			name: "failing suite",
			config: `tests:
  - id: broken
    cmd: ["sh", "-c", "exit 3"]
`,
			args:         []string{"run"},
			expectedExit: 1,
		},
		{
			name:         "list",
			config:       suiteYAML,
			args:         []string{"list"},
			expectedExit: 0,
		},
		{
			name:         "version",
			args:         []string{"version"},
			expectedExit: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.config != "" {
				require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "tern.yaml"), []byte(tt.config), 0o600))
			}
			t.Chdir(tmpDir)

			exitCode := run(t.Context(), tt.args, io.Discard, func(ctx context.Context) (*app.Components, func(), error) {
				c, _, err := graft.ExecuteFor[*app.Components](ctx)
				return c, func() {}, err
			})
			assert.Equal(t, tt.expectedExit, exitCode)
		})
	}
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

func newComponents(t *testing.T) (*app.Components, *mocks.MockCatalogLoader, *mocks.MockLogger, *mocks.MockHistoryStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockCatalogLoader(ctrl)
	log := mocks.NewMockLogger(ctrl)
	store := mocks.NewMockHistoryStore(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	a := app.New(loader, engine.New(log), store, linear.NewSink(io.Discard, io.Discard), log)
	return &app.Components{App: a, Logger: log}, loader, log, store
}

// TestRun_ExecutionError verifies that run logs the error and returns 1 when a command fails.
func TestRun_ExecutionError(t *testing.T) {
	components, loader, log, _ := newComponents(t)
	loader.EXPECT().Load("").Return(nil, errors.New("load failed"))
	log.EXPECT().Error(gomock.Any()).Times(1)

	cleaned := false
	exitCode := run(context.Background(), []string{"run"}, io.Discard, func(context.Context) (*app.Components, func(), error) {
		return components, func() { cleaned = true }, nil
	})

	assert.Equal(t, 1, exitCode)
	assert.True(t, cleaned)
}

// TestRun_TestsFailed verifies that failing tests exit with 1 without logging the error again.
func TestRun_TestsFailed(t *testing.T) {
	components, loader, _, store := newComponents(t)

	c := domain.NewCatalog()
	require.NoError(t, c.Add(&domain.TestDescriptor{
		ID:     domain.NewInternedString("broken"),
		Unit:   domain.NewInternedString("broken"),
		Module: domain.NewInternedString("default"),
		Body: func(context.Context, *domain.TestContext) error {
			return errors.New("boom")
		},
	}))
	loader.EXPECT().Load("").Return(&domain.Suite{Catalog: c, Hooks: domain.NewHookBindings(), Config: domain.DefaultConfig()}, nil)
	store.EXPECT().Put(gomock.Any()).Return(nil)

	var applied bool
	exitCode := run(context.Background(), []string{"run"}, io.Discard, func(context.Context) (*app.Components, func(), error) {
		return components, func() {}, nil
	}, func(*app.App) { applied = true })

	assert.Equal(t, 1, exitCode)
	assert.True(t, applied)
}
