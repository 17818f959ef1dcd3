package bundle

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
)

// Compiler turns targets into files on disk
type Compiler struct {
	Config Config
	// SkipTypes disables the TypeScript declaration pass
	SkipTypes bool
}

// CompileResult lists the files written for a target
type CompileResult struct {
	Target string
	Files  []string
}

func (c *Compiler) abs(path string) (string, error) {
	result, err := filepath.Abs(c.Config.Path(path))
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", path)
	}
	return result, nil
}

// buildOptions translates an output declaration into esbuild options
func (c *Compiler) buildOptions(target *Target, out *Output) (api.BuildOptions, error) {
	format, err := out.Format.esbuild()
	if err != nil {
		return api.BuildOptions{}, err
	}

	langTarget, err := parseTarget(out.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	root, err := c.abs(".")
	if err != nil {
		return api.BuildOptions{}, err
	}

	input, err := c.abs(target.Input)
	if err != nil {
		return api.BuildOptions{}, err
	}

	outfile, err := c.abs(out.File)
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     root,
		EntryPoints:       []string{input},
		Outfile:           outfile,
		Bundle:            true,
		Format:            format,
		Target:            langTarget,
		Platform:          api.PlatformBrowser,
		External:          target.External,
		MinifyWhitespace:  out.Minify,
		MinifyIdentifiers: out.Minify,
		MinifySyntax:      out.Minify,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{c.assetPlugin(out)},
	}

	if out.Format == FormatIIFE {
		opts.GlobalName = out.GlobalName
	}

	return opts, nil
}

// assetPlugin copies the output's assets once a build finishes without errors
func (c *Compiler) assetPlugin(out *Output) api.Plugin {
	return api.Plugin{
		Name: "copy-assets",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				_, err := c.copyAssets(out)
				return api.OnEndResult{}, err
			})
		},
	}
}

func (c *Compiler) copyAssets(out *Output) ([]string, error) {
	written := make([]string, 0, len(out.Assets))
	for _, asset := range out.Assets {
		content, err := ioutil.ReadFile(c.Config.Path(asset.Source))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read asset %s", asset.Source)
		}

		dest := c.Config.Path(filepath.Dir(out.File), asset.FileName)
		err = writeFile(dest, content)
		if err != nil {
			return nil, err
		}
		written = append(written, dest)
	}
	return written, nil
}

func writeFile(path string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	err = ioutil.WriteFile(path, content, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func isDeclaration(path string) bool {
	return strings.Contains(filepath.Base(path), ".d.ts")
}

func formatMessages(messages []api.Message) string {
	return strings.Join(api.FormatMessages(messages, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	}), "\n")
}

// Compile builds every output of the target. Declarations emitted by the TypeScript pass are placed next
// to each output unless the output removes them.
func (c *Compiler) Compile(ctx context.Context, target *Target) (*CompileResult, error) {
	result := &CompileResult{Target: target.Name}

	declarations, err := c.declarations(ctx, target)
	if err != nil {
		return nil, eris.Wrapf(err, "declarations for %s failed", target.Name)
	}

	for _, out := range target.Outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		opts, err := c.buildOptions(target, out)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid output %s", out.File)
		}

		log(ctx).Debug().
			Str("task", target.Name).
			Str("path", opts.Outfile).
			Msgf("bundling %s as %s", target.Input, out.Format)

		built := api.Build(opts)
		if len(built.Errors) > 0 {
			return nil, eris.Errorf("failed to build %s:\n%s", out.File, formatMessages(built.Errors))
		}

		for _, warning := range built.Warnings {
			log(ctx).Warn().Str("task", target.Name).Msg(warning.Text)
		}

		for _, file := range built.OutputFiles {
			if out.RemoveDefs && isDeclaration(file.Path) {
				continue
			}

			err = writeFile(file.Path, file.Contents)
			if err != nil {
				return nil, err
			}
			result.Files = append(result.Files, file.Path)
		}

		if !out.RemoveDefs {
			for name, content := range declarations {
				dest := filepath.Join(filepath.Dir(opts.Outfile), name)
				err = writeFile(dest, content)
				if err != nil {
					return nil, err
				}
				result.Files = append(result.Files, dest)
			}
		}

		for _, asset := range out.Assets {
			result.Files = append(result.Files, c.Config.Path(filepath.Dir(out.File), asset.FileName))
		}
	}

	return result, nil
}

// declarations runs the TypeScript compiler for targets that build types and returns the emitted
// .d.ts files keyed by their path relative to the declaration root
func (c *Compiler) declarations(ctx context.Context, target *Target) (map[string][]byte, error) {
	if target.TypeScript == nil || !target.TypeScript.Build || c.SkipTypes || c.Config.TypeScript.Command == "" {
		return nil, nil
	}

	tmpDir, err := ioutil.TempDir("", "distbuild-types")
	if err != nil {
		return nil, eris.Wrap(err, "could not create temporary directory")
	}
	defer os.RemoveAll(tmpDir)

	root, err := c.abs(".")
	if err != nil {
		return nil, err
	}

	project := target.TypeScript.Dir
	if project == "" {
		project = filepath.Dir(target.Input)
	}

	script := c.Config.TypeScript.Command + " -p " + shellQuote(filepath.ToSlash(project)) +
		" --declaration --emitDeclarationOnly --outDir " + shellQuote(filepath.ToSlash(tmpDir))

	err = RunCommand(ctx, ShellCommand{
		Name:   target.Name,
		Dir:    root,
		Env:    c.Config.TypeScript.Env,
		Script: script,
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte)
	err = filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isDeclaration(path) {
			return nil
		}

		rel, err := filepath.Rel(tmpDir, path)
		if err != nil {
			return err
		}

		result[rel], err = ioutil.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to collect declarations")
	}

	log(ctx).Debug().Str("task", target.Name).Int("count", len(result)).Msg("collected declarations")
	return result, nil
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
