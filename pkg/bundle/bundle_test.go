package bundle

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFiles creates the given files below root
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0770))
		require.NoError(t, ioutil.WriteFile(path, []byte(content), 0660))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

// testConfig returns the default layout rooted at a fresh temporary directory
func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.TypeScript.Command = ""
	return cfg
}

const libSource = `const prefix: string = "kv:";

export function key(name: string): string {
	return prefix + name;
}

export async function get(name: string): Promise<string | undefined> {
	return localStorage.getItem(key(name)) ?? undefined;
}
`

func libraryFixture() map[string]string {
	return map[string]string{
		"src/index.ts":       libSource,
		"test/index.ts":      "import { key } from '../src/index';\nconsole.log(key('harness'));\n",
		"test/index.html":    "<!doctype html><script type=module src=index.js></script>\n",
		"size-tests/get.js":  "import { get } from '../src/index';\nget('a');\n",
		"size-tests/key.js":  "import { key } from '../src/index';\nconsole.log(key('a'));\n",
		"size-tests/README":  "not a size test\n",
		"dist/stale/file.js": "// left over from an earlier run\n",
	}
}

var bg = context.Background()
