package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// Second init without force must refuse
	_, err = InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// Force overwrites
	_, err = InitConfig(true)
	require.NoError(t, err)

	// The generated file must load back as a valid config
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom", "gigsync.yaml")

	require.NoError(t, InitConfigToPath(path, false))
	assert.FileExists(t, path)
}
