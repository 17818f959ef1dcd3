package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bundleScript declares the same targets as the built-in plan
const bundleScript = `
global_name = option("global_name", default = "idbKeyval", help = "name of the IIFE global")

def library(suffix, lang = "", external = [], build_types = False):
    return target(
        name = "lib" + suffix,
        input = "src/index.ts",
        typescript = "src",
        typescript_build = build_types,
        external = external,
        outputs = [
            output(file = OUT_DIR + "/esm" + suffix + "/index.js", format = "es", target = lang),
            output(file = OUT_DIR + "/cjs" + suffix + "/index.js", format = "cjs", target = lang),
            output(
                file = OUT_DIR + "/iife" + suffix + "/index-min.js",
                format = "iife",
                global_name = global_name,
                minify = True,
                target = lang or "es2020",
                remove_defs = True,
            ),
        ],
    )

def configure(watch):
    if watch:
        target(
            name = "dev",
            input = "test/index.ts",
            typescript = "test",
            outputs = [output(
                file = OUT_DIR + "/test/index.js",
                format = "es",
                assets = {"index.html": "test/index.html"},
            )],
        )
        return

    library("", build_types = True)
    library("-compat", lang = "es2015", external = ["@babel/runtime", "@babel/runtime/*"])

    for path in glob("size-tests/*.js"):
        target(
            input = path,
            outputs = [output(file = OUT_DIR + "/size-tests/" + basename(path), format = "es", minify = True)],
        )
`

func scriptConfig(t *testing.T, script string) Config {
	t.Helper()

	cfg := testConfig(t)
	files := libraryFixture()
	files[ScriptFile] = script
	writeFiles(t, cfg.Root, files)
	return cfg
}

func TestScriptProductionPlan(t *testing.T) {
	cfg := scriptConfig(t, bundleScript)

	plan, err := Configure(bg, cfg, false, map[string]string{"global_name": "kv"})
	require.NoError(t, err)

	assert.Equal(t, ModeProduction, plan.Mode)
	require.Len(t, plan.Outputs(), 6+2)
	assert.Equal(t, map[string]string{"global_name": "name of the IIFE global"}, plan.Options)

	lib, ok := plan.Target("lib")
	require.True(t, ok)
	assert.Equal(t, "src/index.ts", lib.Input)
	assert.Equal(t, &TypeScript{Dir: "src", Build: true}, lib.TypeScript)
	assert.Equal(t, "dist/iife/index-min.js", lib.Outputs[2].File)
	assert.Equal(t, "kv", lib.Outputs[2].GlobalName)
	assert.Equal(t, "es2020", lib.Outputs[2].Target)

	compat, ok := plan.Target("lib-compat")
	require.True(t, ok)
	assert.Equal(t, []string{"@babel/runtime", "@babel/runtime/*"}, compat.External)
	assert.Equal(t, "es2015", compat.Outputs[0].Target)

	sizeTests := 0
	for _, target := range plan.Targets {
		if strings.HasPrefix(target.Name, "auto#") {
			sizeTests++
			assert.True(t, strings.HasPrefix(target.Outputs[0].File, "dist/size-tests/"))
		}
	}
	assert.Equal(t, 2, sizeTests)
}

func TestScriptDevelopmentPlan(t *testing.T) {
	cfg := scriptConfig(t, bundleScript)

	plan, err := Configure(bg, cfg, true, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeDevelopment, plan.Mode)
	require.Len(t, plan.Targets, 1)
	require.Len(t, plan.Outputs(), 1)
	assert.Equal(t, []Asset{{Source: "test/index.html", FileName: "index.html"}}, plan.Outputs()[0].Assets)
}

func TestScriptErrors(t *testing.T) {
	cases := map[string]struct {
		script  string
		message string
	}{
		"missing configure": {
			script:  "x = 1\n",
			message: "did not declare a configure function",
		},
		"configure is no function": {
			script:  "configure = 1\n",
			message: "not a function",
		},
		"target outside configure": {
			script:  "target(input = 'a.js', outputs = [])\ndef configure(watch):\n    pass\n",
			message: "only be declared inside configure()",
		},
		"option inside configure": {
			script:  "def configure(watch):\n    option('x')\n",
			message: "init phase",
		},
		"unknown format": {
			script:  "def configure(watch):\n    target(input = 'a.js', outputs = [output(file = 'dist/a.js', format = 'amd')])\n",
			message: "unknown format",
		},
		"explicit error": {
			script:  "def configure(watch):\n    error('refusing to build')\n",
			message: "refusing to build",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := scriptConfig(t, tc.script)

			_, err := Configure(bg, cfg, false, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestScriptReadYaml(t *testing.T) {
	cfg := scriptConfig(t, `
def configure(watch):
    name = read_yaml("meta.yml", "build.global", "fallback")
    missing = read_yaml("meta.yml", "build.nothing", "fallback")
    target(
        name = "lib",
        input = "src/index.ts",
        outputs = [
            output(file = OUT_DIR + "/a.js", format = "iife", global_name = name),
            output(file = OUT_DIR + "/b.js", format = "iife", global_name = missing),
        ],
    )
`)
	writeFiles(t, cfg.Root, map[string]string{"meta.yml": "build:\n  global: fromYaml\n"})

	plan, err := Configure(bg, cfg, false, nil)
	require.NoError(t, err)

	lib, ok := plan.Target("lib")
	require.True(t, ok)
	assert.Equal(t, "fromYaml", lib.Outputs[0].GlobalName)
	assert.Equal(t, "fallback", lib.Outputs[1].GlobalName)
}
