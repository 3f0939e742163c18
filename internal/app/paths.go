package app

import (
	"os"
	"path/filepath"
)

// Paths holds all resolved filesystem paths for the .dmtree/ project directory.
type Paths struct {
	Project string // directory holding the .dme and dmtree.yaml
	Config  string // dmtree.yaml

	Root   string // .dmtree/
	Cache  string // .dmtree/cache.db
	LogDir string // .dmtree/log/
	LibDir string // .dmtree/lib/
}

// NewPaths constructs all resolved paths from a project directory.
func NewPaths(projectRoot string) *Paths {
	root := filepath.Join(projectRoot, ".dmtree")
	return &Paths{
		Project: projectRoot,
		Config:  filepath.Join(projectRoot, ConfigFile),

		Root:   root,
		Cache:  filepath.Join(root, "cache.db"),
		LogDir: filepath.Join(root, "log"),
		LibDir: filepath.Join(root, "lib"),
	}
}

// ProjectRootFor returns the project directory of a source file: the
// closest ancestor holding dmtree.yaml, or the file's own directory.
func ProjectRootFor(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		return filepath.Dir(source)
	}
	start := filepath.Dir(abs)
	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// EnsureDirs creates all subdirectories under .dmtree/. Idempotent.
func (p *Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.LogDir, p.LibDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
