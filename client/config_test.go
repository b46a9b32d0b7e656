package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "fmgo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
host: https://fms.example.com
database: Company
username: web
password: secret
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "xml", config.Grammar)
	assert.Equal(t, defaultTimeoutSeconds, config.TimeoutSeconds)
	assert.Equal(t, defaultLayoutCacheSize, config.LayoutCacheSize)
}

func TestLoadConfig_GrammarChecked(t *testing.T) {
	path := writeConfig(t, `
host: https://fms.example.com
database: Company
grammar: soap
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingHost(t *testing.T) {
	path := writeConfig(t, `
database: Company
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
