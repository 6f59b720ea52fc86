package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/task"
)

const immediateConfig = `
server:
  log_level: error
tasks:
  backends:
    - alias: default
      kind: immediate
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun(t *testing.T) {
	path := writeConfig(t, immediateConfig)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"-config", path,
		"-task", "example.add",
		"-args", "[1]",
		"-kwargs", `{"b": 2}`,
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var snap task.Snapshot
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &snap))
	assert.Equal(t, "example.add", snap.TaskName)
	assert.Equal(t, "default", snap.Backend)
	assert.Equal(t, task.StatusSuccessful, snap.Status)
	assert.Equal(t, float64(3), snap.ReturnValue)
	assert.JSONEq(t, `1`, string(snap.Args.Args[0]))
}

func TestRun_Errors(t *testing.T) {
	path := writeConfig(t, immediateConfig)

	tests := []struct {
		name    string
		argv    []string
		wantErr error
	}{
		{name: "missing task flag", argv: []string{"-config", path}},
		{name: "bad args", argv: []string{"-config", path, "-task", "example.add", "-args", "{}"}},
		{name: "bad kwargs", argv: []string{"-config", path, "-task", "example.add", "-kwargs", "[]"}},
		{name: "unknown task", argv: []string{"-config", path, "-task", "example.nope"}, wantErr: task.ErrTaskNotFound},
		{
			name:    "transaction without database",
			argv:    []string{"-config", path, "-task", "example.add", "-args", "[1]", "-tx"},
			wantErr: config.ErrImproperlyConfigured,
		},
		{
			name:    "unknown backend",
			argv:    []string{"-config", path, "-task", "example.add", "-args", "[1]", "-backend", "other"},
			wantErr: config.ErrImproperlyConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.argv, &stdout, &stderr)

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, stdout.String())
		})
	}
}

func TestTaskOptions(t *testing.T) {
	assert.Empty(t, taskOptions(options{}))

	def := task.New("example.x", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	got := def.Using(taskOptions(options{queue: "emails", backend: "other", delay: time.Minute})...)

	assert.Equal(t, "emails", got.QueueName)
	assert.Equal(t, "other", got.Backend)
	assert.False(t, got.RunAfter.IsZero())
	assert.Equal(t, "default", def.QueueName)
}
