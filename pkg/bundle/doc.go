// Package bundle declares and executes the distribution builds of the key-value storage library.
// The declaration is either the built-in plan or a Starlark script, the heavy lifting is done by esbuild
// and mvdan.cc/sh runs the few external commands (tsc) a build needs.
package bundle
