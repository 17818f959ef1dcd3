package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// removed while listing
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

// expandPatterns resolves shell glob patterns (including **) relative to base. Patterns without matches
// produce nothing.
func expandPatterns(base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	quotedBase := shellQuote(filepath.ToSlash(base))

	for _, item := range patterns {
		pattern := filepath.ToSlash(item)
		if !filepath.IsAbs(item) {
			pattern = quotedBase + "/" + pattern
		}

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(pattern), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as is. Skip those results.
			if _, err := os.Stat(match); err != nil {
				if eris.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, eris.Wrapf(err, "failed to check %s", match)
			}
			result = append(result, filepath.FromSlash(match))
		}
	}
	return result, nil
}

// normalizePath resolves script paths. "//" is the project root, relative paths start at base.
func normalizePath(root, base string, pathList ...string) string {
	result := base

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(root, path[2:])
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

// simplifyPath turns paths below root into "//" paths for log messages
func simplifyPath(root, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if strings.HasPrefix(absPath, root+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(root)+1:])
	}
	return path
}

// mergeEnv overlays overrides on the process environment
func mergeEnv(overrides map[string]string) []string {
	osEnv := os.Environ()
	env := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overriden entries to avoid conflicts
		if _, present := overrides[parts[0]]; !present {
			env = append(env, item)
		}
	}

	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return env
}
