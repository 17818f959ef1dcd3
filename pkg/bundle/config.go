package bundle

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the name of the optional project configuration file
const ConfigFile = "distbuild.yml"

// ScriptFile is the name of the optional Starlark build script
const ScriptFile = "bundle.star"

type LibraryConfig struct {
	Entry      string `yaml:"entry"`
	SourceDir  string `yaml:"source_dir"`
	GlobalName string `yaml:"global_name"`
	// MinifyTarget is the syntax level the modern IIFE build is minified for
	MinifyTarget string `yaml:"minify_target"`
}

type DevConfig struct {
	Entry     string `yaml:"entry"`
	SourceDir string `yaml:"source_dir"`
	HTML      string `yaml:"html"`
}

type CompatConfig struct {
	Target   string   `yaml:"target"`
	External []string `yaml:"external"`
}

type TypeScriptConfig struct {
	// Command is run through the shell interpreter, an empty command disables declaration builds
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

// Config holds the project layout. Relative paths are resolved against Root.
type Config struct {
	Root       string           `yaml:"-"`
	OutDir     string           `yaml:"out_dir"`
	Library    LibraryConfig    `yaml:"library"`
	Dev        DevConfig        `yaml:"dev"`
	SizeTests  string           `yaml:"size_tests"`
	Compat     CompatConfig     `yaml:"compat"`
	TypeScript TypeScriptConfig `yaml:"typescript"`
	Script     string           `yaml:"script"`
}

// DefaultConfig returns the layout of the storage library repository
func DefaultConfig() Config {
	return Config{
		Root:   ".",
		OutDir: "dist",
		Library: LibraryConfig{
			Entry:        "src/index.ts",
			SourceDir:    "src",
			GlobalName:   "idbKeyval",
			MinifyTarget: "es2020",
		},
		Dev: DevConfig{
			Entry:     "test/index.ts",
			SourceDir: "test",
			HTML:      "test/index.html",
		},
		SizeTests: "size-tests/*.js",
		Compat: CompatConfig{
			Target:   "es2015",
			External: []string{"@babel/runtime", "@babel/runtime/*"},
		},
		TypeScript: TypeScriptConfig{
			Command: "tsc",
		},
		Script: ScriptFile,
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig. A missing file is not an error.
func LoadConfig(root, path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.Root = root

	if path == "" {
		path = filepath.Join(root, ConfigFile)
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, eris.Wrapf(err, "could not open file %s", path)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, eris.Wrapf(err, "failed to parse %s", path)
	}
	cfg.Root = root

	return cfg, cfg.Validate()
}

// Validate rejects configurations that can't produce a plan
func (c Config) Validate() error {
	required := map[string]string{
		"out_dir":       c.OutDir,
		"library.entry": c.Library.Entry,
		"dev.entry":     c.Dev.Entry,
	}
	for name, value := range required {
		if value == "" {
			return eris.Errorf("%s must not be empty", name)
		}
	}

	if err := c.checkOutDir(); err != nil {
		return err
	}

	if _, err := parseTarget(c.Library.MinifyTarget); err != nil {
		return eris.Wrap(err, "library.minify_target")
	}

	if _, err := parseTarget(c.Compat.Target); err != nil {
		return eris.Wrap(err, "compat.target")
	}

	return nil
}

// checkOutDir makes sure the output directory lies strictly inside the project root since it gets
// removed on every run
func (c Config) checkOutDir() error {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", c.Root)
	}

	outDir, err := filepath.Abs(c.Path(c.OutDir))
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", c.OutDir)
	}

	rel, err := filepath.Rel(root, outDir)
	if err != nil {
		return eris.Errorf("out_dir %s is outside of the project root", c.OutDir)
	}
	if rel == "." {
		return eris.New("out_dir must not be the project root")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return eris.Errorf("out_dir %s is outside of the project root", c.OutDir)
	}
	return nil
}

// Path resolves a project relative path
func (c Config) Path(parts ...string) string {
	path := filepath.Join(parts...)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, path)
}
