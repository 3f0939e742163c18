package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/logger"
)

// ConfigFile is the per-project configuration file name.
const ConfigFile = "dmtree.yaml"

// Config is the contents of dmtree.yaml. Every field is optional.
type Config struct {
	// Defines are predefined object-like macros, as if #define'd before
	// the environment file.
	Defines map[string]string `yaml:"defines,omitempty" validate:"dive,keys,required,excludesall=()#,endkeys"`

	// IncludePaths are searched for #include after the including file's
	// directory. Relative paths are relative to the project directory.
	IncludePaths []string `yaml:"include_paths,omitempty" validate:"dive,required"`

	// Encoding of the sources: auto, utf-8 or windows-1252.
	Encoding string `yaml:"encoding" validate:"oneof=auto utf-8 windows-1252"`

	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// CacheConfig controls the snapshot cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // default .dmtree/cache.db
}

// LogConfig controls the structured log.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	Stderr  bool   `yaml:"stderr,omitempty"`
}

// DefaultConfig is used when dmtree.yaml is absent and fills fields it
// leaves out.
func DefaultConfig() Config {
	return Config{
		Encoding: "auto",
		Cache:    CacheConfig{Enabled: true},
		Log:      LogConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads dmtree.yaml from dir. A missing file yields the
// defaults; unknown keys and invalid values are errors.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(dir, ConfigFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", ConfigFile, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// Validate checks field values against their validate tags.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		var fields []string
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		}
		sort.Strings(fields)
		return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
	}
	return err
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// LoadOptions translates the config into loader options for a project.
func (c Config) LoadOptions(projectRoot string) []boundary.Option {
	includes := make([]string, len(c.IncludePaths))
	for i, p := range c.IncludePaths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectRoot, p)
		}
		includes[i] = p
	}
	return []boundary.Option{
		boundary.WithDefines(c.Defines),
		boundary.WithIncludePaths(includes),
		boundary.WithEncoding(c.Encoding),
	}
}

// CachePath resolves the snapshot database path for a project.
func (c Config) CachePath(p *Paths) string {
	switch {
	case c.Cache.Path == "":
		return p.Cache
	case filepath.IsAbs(c.Cache.Path):
		return c.Cache.Path
	default:
		return filepath.Join(p.Project, c.Cache.Path)
	}
}

// LoggerOptions translates the log section for logger.Init.
func (c Config) LoggerOptions(p *Paths) logger.Options {
	return logger.Options{
		Enabled: c.Log.Enabled,
		LogDir:  p.LogDir,
		Stderr:  c.Log.Stderr,
		Level:   logger.ParseLevel(c.Log.Level),
	}
}
