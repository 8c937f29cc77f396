package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type serviceConfig struct {
	Endpoint    string `yaml:"endpoint" validate:"required"`
	PollSeconds uint64 `yaml:"poll_seconds" validate:"gt=0"`
	PageSize    int    `yaml:"page_size"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg := &serviceConfig{}
	require.NoError(t, Load(writeConfig(t, `
endpoint: http://localhost:9000
poll_seconds: 10
`), cfg))
	require.Equal(t, "http://localhost:9000", cfg.Endpoint)
	require.Equal(t, uint64(10), cfg.PollSeconds)
	require.Zero(t, cfg.PageSize)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "empty file",
			content: "{}",
		},
		{
			name:    "missing endpoint",
			content: "poll_seconds: 10",
		},
		{
			name: "zero poll interval",
			content: `
endpoint: http://localhost:9000
poll_seconds: 0
`,
		},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			err := Load(writeConfig(t, c.content), &serviceConfig{})
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &serviceConfig{})
	require.Error(t, err)
}
