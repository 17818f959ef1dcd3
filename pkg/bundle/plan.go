package bundle

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// Names of the targets declared by the built-in plan
const (
	TargetDev    = "dev"
	TargetMain   = "main"
	TargetCompat = "compat"
)

// SizeTargetPrefix prefixes the name of every size-test target
const SizeTargetPrefix = "size-test:"

// Clean removes the output directory. Removing a missing directory succeeds.
func Clean(ctx context.Context, cfg Config) error {
	if err := cfg.checkOutDir(); err != nil {
		return err
	}

	outDir := cfg.Path(cfg.OutDir)
	log(ctx).Debug().Str("path", outDir).Msg("removing output directory")

	err := os.RemoveAll(outDir)
	if err != nil {
		return eris.Wrapf(err, "failed to remove %s", outDir)
	}
	return nil
}

// Configure clears the output directory and declares the targets for the given mode. If the project
// contains a build script, its configure() function declares the targets instead of the built-in plan.
func Configure(ctx context.Context, cfg Config, watch bool, options map[string]string) (*Plan, error) {
	err := Clean(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var plan *Plan
	script := ""
	if cfg.Script != "" {
		script = cfg.Path(cfg.Script)
		if _, err := os.Stat(script); err != nil {
			if !eris.Is(err, os.ErrNotExist) {
				return nil, eris.Wrapf(err, "failed to check %s", script)
			}
			script = ""
		}
	}

	if script != "" {
		log(ctx).Info().Str("path", script).Msg("declaring targets from script")
		plan, err = RunScript(ctx, cfg, script, options, watch)
	} else if watch {
		plan, err = devPlan(cfg)
	} else {
		plan, err = prodPlan(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	err = plan.Validate()
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func outPath(cfg Config, parts ...string) string {
	return filepath.ToSlash(filepath.Join(append([]string{cfg.OutDir}, parts...)...))
}

func devPlan(cfg Config) (*Plan, error) {
	output := &Output{
		File:   outPath(cfg, "test", "index.js"),
		Format: FormatES,
	}
	if cfg.Dev.HTML != "" {
		output.Assets = []Asset{{
			Source:   cfg.Dev.HTML,
			FileName: "index.html",
		}}
	}

	return &Plan{
		Mode:   ModeDevelopment,
		Root:   cfg.Root,
		OutDir: cfg.OutDir,
		Targets: []*Target{{
			Name:       TargetDev,
			Input:      cfg.Dev.Entry,
			TypeScript: &TypeScript{Dir: cfg.Dev.SourceDir},
			Outputs:    []*Output{output},
		}},
	}, nil
}

// libraryOutputs declares the ESM, CJS and minified IIFE builds below the given directory suffix
func libraryOutputs(cfg Config, suffix, minifyTarget string) []*Output {
	return []*Output{
		{
			File:   outPath(cfg, "esm"+suffix, "index.js"),
			Format: FormatES,
			Target: minifyTarget,
		},
		{
			File:   outPath(cfg, "cjs"+suffix, "index.js"),
			Format: FormatCJS,
			Target: minifyTarget,
		},
		{
			File:       outPath(cfg, "iife"+suffix, "index-min.js"),
			Format:     FormatIIFE,
			GlobalName: cfg.Library.GlobalName,
			Minify:     true,
			Target:     minifyTarget,
			RemoveDefs: true,
		},
	}
}

func prodPlan(ctx context.Context, cfg Config) (*Plan, error) {
	mainTarget := &Target{
		Name:       TargetMain,
		Input:      cfg.Library.Entry,
		TypeScript: &TypeScript{Dir: cfg.Library.SourceDir, Build: true},
		Outputs:    libraryOutputs(cfg, "", ""),
	}
	// only the IIFE build is minified for a specific syntax level
	mainTarget.Outputs[2].Target = cfg.Library.MinifyTarget

	compat := &Target{
		Name:       TargetCompat,
		Input:      cfg.Library.Entry,
		TypeScript: &TypeScript{Dir: cfg.Library.SourceDir},
		External:   append([]string(nil), cfg.Compat.External...),
		Outputs:    libraryOutputs(cfg, "-compat", cfg.Compat.Target),
	}

	plan := &Plan{
		Mode:    ModeProduction,
		Root:    cfg.Root,
		OutDir:  cfg.OutDir,
		Targets: []*Target{mainTarget, compat},
	}

	sizeTests, err := DiscoverSizeTests(ctx, cfg.Root, cfg.SizeTests)
	if err != nil {
		return nil, err
	}

	for _, input := range sizeTests {
		plan.Targets = append(plan.Targets, sizeTestTarget(cfg, input))
	}

	return plan, nil
}

func sizeTestTarget(cfg Config, input string) *Target {
	name := path.Base(filepath.ToSlash(input))
	return &Target{
		Name:  SizeTargetPrefix + name,
		Input: input,
		Outputs: []*Output{{
			File:   outPath(cfg, "size-tests", name),
			Format: FormatES,
			Minify: true,
			Target: cfg.Library.MinifyTarget,
		}},
	}
}

// DiscoverSizeTests expands the glob pattern relative to root and returns the sorted, root relative matches
func DiscoverSizeTests(ctx context.Context, root, pattern string) ([]string, error) {
	if pattern == "" {
		return []string{}, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", root)
	}

	matches, err := expandPatterns(absRoot, []string{pattern})
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to check %s", match)
		}
		if info.IsDir() {
			continue
		}

		rel, err := filepath.Rel(absRoot, match)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to simplify %s", match)
		}
		result = append(result, filepath.ToSlash(rel))
	}

	sort.Strings(result)
	log(ctx).Debug().Int("count", len(result)).Str("pattern", pattern).Msg("discovered size tests")
	return result, nil
}
