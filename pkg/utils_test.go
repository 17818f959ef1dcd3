package pkg

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "size-tests", "deep")
	require.NoError(t, os.MkdirAll(nested, 0770))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0660))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	found, err = FindProjectRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRootPrefersNearestMarker(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "packages", "kv")
	require.NoError(t, os.MkdirAll(inner, 0770))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0660))
	require.NoError(t, ioutil.WriteFile(filepath.Join(inner, "distbuild.yml"), []byte(""), 0660))

	found, err := FindProjectRoot(inner)
	require.NoError(t, err)
	assert.Equal(t, inner, found)
}
