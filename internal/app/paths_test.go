package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaths(t *testing.T) {
	p := NewPaths("/project")
	assert.Equal(t, "/project", p.Project)
	assert.Equal(t, filepath.Join("/project", "dmtree.yaml"), p.Config)
	assert.Equal(t, filepath.Join("/project", ".dmtree"), p.Root)
	assert.Equal(t, filepath.Join("/project", ".dmtree", "cache.db"), p.Cache)
	assert.Equal(t, filepath.Join("/project", ".dmtree", "log"), p.LogDir)
	assert.Equal(t, filepath.Join("/project", ".dmtree", "lib"), p.LibDir)
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	p := NewPaths(dir)

	require.NoError(t, p.EnsureDirs())
	for _, d := range []string{p.Root, p.LogDir, p.LibDir} {
		info, err := os.Stat(d)
		require.NoError(t, err, "dir %s should exist", d)
		assert.True(t, info.IsDir())
	}

	// Idempotent.
	require.NoError(t, p.EnsureDirs())
}

func TestProjectRootFor(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "code", "modules")
	require.NoError(t, os.MkdirAll(nested, 0755))
	source := filepath.Join(nested, "game.dme")

	// No dmtree.yaml anywhere above: the file's own directory.
	assert.Equal(t, nested, ProjectRootFor(source))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), nil, 0644))
	assert.Equal(t, dir, ProjectRootFor(source))

	// The nearest config wins.
	require.NoError(t, os.WriteFile(filepath.Join(nested, ConfigFile), nil, 0644))
	assert.Equal(t, nested, ProjectRootFor(source))
}
