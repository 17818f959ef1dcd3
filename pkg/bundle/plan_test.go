package bundle

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureProduction(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.Root, libraryFixture())

	plan, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.Root, "dist"))
	assert.True(t, os.IsNotExist(err), "output directory should be removed")

	assert.Equal(t, ModeProduction, plan.Mode)
	require.Len(t, plan.Outputs(), 6+2)

	mainTarget, ok := plan.Target(TargetMain)
	require.True(t, ok)
	assert.Equal(t, "src/index.ts", mainTarget.Input)
	require.NotNil(t, mainTarget.TypeScript)
	assert.True(t, mainTarget.TypeScript.Build)
	assert.Empty(t, mainTarget.External)

	files := make([]string, 0)
	for _, out := range mainTarget.Outputs {
		files = append(files, out.File)
	}
	assert.Equal(t, []string{"dist/esm/index.js", "dist/cjs/index.js", "dist/iife/index-min.js"}, files)

	iife := mainTarget.Outputs[2]
	assert.Equal(t, FormatIIFE, iife.Format)
	assert.Equal(t, "idbKeyval", iife.GlobalName)
	assert.True(t, iife.Minify)
	assert.True(t, iife.RemoveDefs)
	assert.Equal(t, "es2020", iife.Target)
	assert.False(t, mainTarget.Outputs[0].Minify)

	compat, ok := plan.Target(TargetCompat)
	require.True(t, ok)
	assert.False(t, compat.TypeScript.Build)
	assert.Equal(t, []string{"@babel/runtime", "@babel/runtime/*"}, compat.External)

	files = files[:0]
	for _, out := range compat.Outputs {
		files = append(files, out.File)
		assert.Equal(t, "es2015", out.Target)
	}
	assert.Equal(t, []string{"dist/esm-compat/index.js", "dist/cjs-compat/index.js", "dist/iife-compat/index-min.js"}, files)
	assert.Equal(t, []Format{FormatES, FormatCJS, FormatIIFE},
		[]Format{compat.Outputs[0].Format, compat.Outputs[1].Format, compat.Outputs[2].Format})

	_, ok = plan.Target(TargetDev)
	assert.False(t, ok)
}

func TestConfigureSizeTestsKeepBaseName(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.Root, libraryFixture())

	plan, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)

	inputs := make([]string, 0)
	for _, target := range plan.Targets {
		if !strings.HasPrefix(target.Name, SizeTargetPrefix) {
			continue
		}

		inputs = append(inputs, target.Input)
		require.Len(t, target.Outputs, 1)
		assert.Equal(t, path.Base(target.Input), path.Base(target.Outputs[0].File))
		assert.Equal(t, "dist/size-tests/"+path.Base(target.Input), target.Outputs[0].File)
		assert.Equal(t, FormatES, target.Outputs[0].Format)
		assert.True(t, target.Outputs[0].Minify)
	}

	assert.Equal(t, []string{"size-tests/get.js", "size-tests/key.js"}, inputs)
}

func TestConfigureDevelopment(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.Root, libraryFixture())

	plan, err := Configure(bg, cfg, true, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.Root, "dist"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, ModeDevelopment, plan.Mode)
	require.Len(t, plan.Targets, 1)
	require.Len(t, plan.Outputs(), 1)

	target := plan.Targets[0]
	assert.Equal(t, TargetDev, target.Name)
	assert.Equal(t, "test/index.ts", target.Input)
	assert.False(t, target.TypeScript.Build)

	out := target.Outputs[0]
	assert.Equal(t, "dist/test/index.js", out.File)
	assert.Equal(t, FormatES, out.Format)
	assert.Equal(t, []Asset{{Source: "test/index.html", FileName: "index.html"}}, out.Assets)

	for _, name := range []string{TargetMain, TargetCompat} {
		_, ok := plan.Target(name)
		assert.False(t, ok, "development plans must not contain %s", name)
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.Root, libraryFixture())

	first, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)

	writeFiles(t, cfg.Root, map[string]string{"dist/esm/index.js": "stale"})

	second, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	_, err = os.Stat(filepath.Join(cfg.Root, "dist"))
	assert.True(t, os.IsNotExist(err))
}

func TestConfigureWithoutSizeTests(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.Root, map[string]string{"src/index.ts": libSource})

	plan, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)
	assert.Len(t, plan.Targets, 2)
	assert.Len(t, plan.Outputs(), 6)
}

func TestCleanMissingDirectory(t *testing.T) {
	cfg := testConfig(t)

	require.NoError(t, Clean(bg, cfg))
	require.NoError(t, Clean(bg, cfg))
}

func TestDiscoverSizeTestsGlobStar(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"size-tests/a.js":        "",
		"size-tests/nested/b.js": "",
		"size-tests/nested/c.ts": "",
		"other/d.js":             "",
	})

	matches, err := DiscoverSizeTests(bg, root, "size-tests/**/*.js")
	require.NoError(t, err)
	assert.Contains(t, matches, "size-tests/nested/b.js")
	assert.NotContains(t, matches, "size-tests/nested/c.ts")
	assert.NotContains(t, matches, "other/d.js")

	matches, err = DiscoverSizeTests(bg, root, "size-tests/*.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"size-tests/a.js"}, matches)

	matches, err = DiscoverSizeTests(bg, root, "missing/*.js")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = DiscoverSizeTests(bg, root, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPlanValidateRejectsCollisions(t *testing.T) {
	plan := &Plan{
		Targets: []*Target{
			{Name: "a", Input: "a.js", Outputs: []*Output{{File: "dist/x.js", Format: FormatES}}},
			{Name: "b", Input: "b.js", Outputs: []*Output{{File: "dist/./x.js", Format: FormatCJS}}},
		},
	}

	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "written by both a and b")
}

func TestPlanValidateRejectsUnknownFormat(t *testing.T) {
	plan := &Plan{
		Targets: []*Target{
			{Name: "a", Input: "a.js", Outputs: []*Output{{File: "dist/x.js", Format: "amd"}}},
		},
	}

	require.Error(t, plan.Validate())
}

func TestDiscoverSizeTestsQuotedRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "it's a $HOME")
	writeFiles(t, root, map[string]string{
		"size-tests/get.js": "export {}",
		"size-tests/set.js": "export {}",
	})

	matches, err := DiscoverSizeTests(bg, root, "size-tests/*.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"size-tests/get.js", "size-tests/set.js"}, matches)
}
