package bundle

import (
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// Mode selects which pipelines a plan declares
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// ModeFor maps the watch flag to a Mode
func ModeFor(watch bool) Mode {
	if watch {
		return ModeDevelopment
	}
	return ModeProduction
}

// Format is the module format of a single output
type Format string

const (
	FormatES   Format = "es"
	FormatCJS  Format = "cjs"
	FormatIIFE Format = "iife"
)

func (f Format) esbuild() (api.Format, error) {
	switch f {
	case FormatES:
		return api.FormatESModule, nil
	case FormatCJS:
		return api.FormatCommonJS, nil
	case FormatIIFE:
		return api.FormatIIFE, nil
	}

	return api.FormatDefault, eris.Errorf("unknown format %q", string(f))
}

var targetNames = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func parseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ESNext, nil
	}

	target, ok := targetNames[name]
	if !ok {
		return api.DefaultTarget, eris.Errorf("unknown language target %q", name)
	}
	return target, nil
}

// Asset is a file copied verbatim next to an output
type Asset struct {
	Source   string `yaml:"source"`
	FileName string `yaml:"file_name"`
}

// Output describes one file produced from a target's input
type Output struct {
	File       string  `yaml:"file"`
	Format     Format  `yaml:"format"`
	GlobalName string  `yaml:"global_name,omitempty"`
	Minify     bool    `yaml:"minify,omitempty"`
	Target     string  `yaml:"target,omitempty"`
	RemoveDefs bool    `yaml:"remove_defs,omitempty"`
	Assets     []Asset `yaml:"assets,omitempty"`
}

// TypeScript controls the declaration pass for a target. Build=false only uses the sources.
type TypeScript struct {
	Dir   string `yaml:"dir"`
	Build bool   `yaml:"build"`
}

// Target is one (input, outputs, plugin chain) tuple handed to the bundler
type Target struct {
	Name       string      `yaml:"name"`
	Input      string      `yaml:"input"`
	TypeScript *TypeScript `yaml:"typescript,omitempty"`
	External   []string    `yaml:"external,omitempty"`
	Outputs    []*Output   `yaml:"outputs"`
}

// Plan is the full declaration for a single run
type Plan struct {
	Mode    Mode      `yaml:"mode"`
	Root    string    `yaml:"root"`
	OutDir  string    `yaml:"out_dir"`
	Targets []*Target `yaml:"targets"`

	// Options lists the option() names declared by a build script with their help text
	Options map[string]string `yaml:"options,omitempty"`
}

// Outputs returns every declared output across all targets
func (p *Plan) Outputs() []*Output {
	result := make([]*Output, 0)
	for _, target := range p.Targets {
		result = append(result, target.Outputs...)
	}
	return result
}

// Target looks up a target by name
func (p *Plan) Target(name string) (*Target, bool) {
	for _, target := range p.Targets {
		if target.Name == name {
			return target, true
		}
	}
	return nil, false
}

// Validate checks that every output has a known format and that no two outputs collide
func (p *Plan) Validate() error {
	seen := make(map[string]string)
	for _, target := range p.Targets {
		if target.Input == "" {
			return eris.Errorf("target %s has no input", target.Name)
		}
		if len(target.Outputs) == 0 {
			return eris.Errorf("target %s declares no outputs", target.Name)
		}

		for _, out := range target.Outputs {
			if _, err := out.Format.esbuild(); err != nil {
				return eris.Wrapf(err, "target %s", target.Name)
			}
			if _, err := parseTarget(out.Target); err != nil {
				return eris.Wrapf(err, "target %s", target.Name)
			}

			paths := []string{out.File}
			for _, asset := range out.Assets {
				paths = append(paths, filepath.Join(filepath.Dir(out.File), asset.FileName))
			}

			for _, path := range paths {
				key := filepath.Clean(path)
				if other, ok := seen[key]; ok {
					return eris.Errorf("%s is written by both %s and %s", path, other, target.Name)
				}
				seen[key] = target.Name
			}
		}
	}

	return nil
}

// Implement starlark.Value for *Target so scripts can pass targets around

// String returns a string representation of the target
func (t *Target) String() string {
	return fmt.Sprintf("<Target %s: %s>", t.Name, t.Input)
}

// Type always returns "target"
func (t *Target) Type() string {
	return "target"
}

// Freeze doesn't do anything since targets are never modified by scripts
func (t *Target) Freeze() {}

// Truth always returns true since a target can't be nil or None
func (t *Target) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since targets aren't hashable
func (t *Target) Hash() (uint32, error) {
	return 0, eris.New("target is not a hashable type")
}

func (o *Output) String() string {
	return fmt.Sprintf("<Output %s (%s)>", o.File, o.Format)
}

func (o *Output) Type() string {
	return "output"
}

func (o *Output) Freeze() {}

func (o *Output) Truth() starlark.Bool {
	return starlark.True
}

func (o *Output) Hash() (uint32, error) {
	return 0, eris.New("output is not a hashable type")
}
