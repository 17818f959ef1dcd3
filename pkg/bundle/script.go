package bundle

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

type scriptCtx struct {
	ctx          context.Context
	options      map[string]string
	optionValues map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	targets      []*Target
	initPhase    bool
}

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

// relPath resolves a script path and returns it relative to the project root
func (s *scriptCtx) relPath(p string) (string, error) {
	abs := normalizePath(s.projectRoot, filepath.Dir(s.filepath), p)
	rel, err := filepath.Rel(s.projectRoot, abs)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", p)
	}
	return filepath.ToSlash(rel), nil
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func scriptLog(thread *starlark.Thread, warn bool, msg string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos
	location := fmt.Sprintf("%s:%d:%d", simplifyPath(ctx.projectRoot, ctx.filepath), pos.Line, pos.Col)

	event := log(ctx.ctx).Info()
	if warn {
		event = log(ctx.ctx).Warn()
	}
	event.Msgf("%s: %s", location, msg)
}

// * Builtin functions

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, false, message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, true, message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	return starlark.String(os.Getenv(key)), nil
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = help

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func starBasename(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var p string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &p)
	if err != nil {
		return nil, err
	}

	return starlark.String(path.Base(filepath.ToSlash(p))), nil
}

func starGlob(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &pattern)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	rel, err := ctx.relPath(pattern)
	if err != nil {
		return nil, err
	}

	matches, err := DiscoverSizeTests(ctx.ctx, ctx.projectRoot, rel)
	if err != nil {
		return nil, err
	}

	items := make([]starlark.Value, len(matches))
	for idx, match := range matches {
		items[idx] = starlark.String(match)
	}
	return starlark.NewList(items), nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	yamlFile = normalizePath(ctx.projectRoot, filepath.Dir(ctx.filepath), yamlFile)

	doc, loaded := ctx.yamlCache[yamlFile]
	if !loaded {
		content, err := ioutil.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		ctx.yamlCache[yamlFile] = doc
	}

	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(yamlKey, ".") {
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("encountered unexpected value of kind %v in YAML document", value.Kind())
		}
	}

	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return defaultValue, nil
	}

	switch value := value.Interface().(type) {
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		return starlark.Float(value), nil
	case nil:
		return defaultValue, nil
	default:
		return nil, eris.Errorf("can't return value %v", value)
	}
}

func output(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file, format string
	var assets *starlark.Dict
	out := new(Output)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "file", &file, "format", &format,
		"global_name?", &out.GlobalName, "minify?", &out.Minify, "target?", &out.Target,
		"remove_defs?", &out.RemoveDefs, "assets?", &assets)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	out.File, err = ctx.relPath(file)
	if err != nil {
		return nil, err
	}

	out.Format = Format(format)
	if _, err := out.Format.esbuild(); err != nil {
		return nil, err
	}
	if _, err := parseTarget(out.Target); err != nil {
		return nil, err
	}

	if assets != nil {
		for _, rawKey := range assets.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in assets but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := assets.Get(rawKey)
			if err != nil {
				return nil, err
			}
			source, ok := rawValue.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for asset %s but only strings are supported", rawValue.Type(), key.GoString())
			}

			rel, err := ctx.relPath(source.GoString())
			if err != nil {
				return nil, err
			}
			out.Assets = append(out.Assets, Asset{Source: rel, FileName: key.GoString()})
		}
	}

	return out, nil
}

func target(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var input string
	var outputs *starlark.List
	var external *starlark.List
	var tsDir string
	var tsBuild bool

	t := new(Target)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "input", &input, "outputs", &outputs,
		"name?", &t.Name, "external?", &external, "typescript?", &tsDir, "typescript_build?", &tsBuild)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("targets can only be declared inside configure()")
	}

	if t.Name == "" {
		t.Name = "auto#" + nanoid.New()
	}

	t.Input, err = ctx.relPath(input)
	if err != nil {
		return nil, err
	}

	if external != nil {
		t.External, err = starlarkIterable2stringSlice(external, "external")
		if err != nil {
			return nil, err
		}
	}

	if tsDir != "" {
		dir, err := ctx.relPath(tsDir)
		if err != nil {
			return nil, err
		}
		t.TypeScript = &TypeScript{Dir: dir, Build: tsBuild}
	}

	iter := outputs.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		out, ok := item.(*Output)
		if !ok {
			return nil, eris.Errorf("%s: unexpected type %s in outputs, use output()", fn.Name(), item.Type())
		}
		t.Outputs = append(t.Outputs, out)
	}

	if len(t.Outputs) == 0 {
		scriptLog(thread, true, fmt.Sprintf("%s: target %s declares no outputs", fn.Name(), t.Name))
	}

	ctx.targets = append(ctx.targets, t)
	return t, nil
}

// RunScript executes a Starlark build script and calls its configure(watch) function. The targets
// declared during that call make up the returned plan. options are returned by option() calls.
func RunScript(ctx context.Context, cfg Config, filename string, options map[string]string, watch bool) (*Plan, error) {
	projectRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":        starlark.String(runtime.GOOS),
		"ARCH":      starlark.String(runtime.GOARCH),
		"OUT_DIR":   starlark.String(filepath.ToSlash(cfg.OutDir)),
		"info":      starlark.NewBuiltin("info", starInfo),
		"warn":      starlark.NewBuiltin("warn", starWarn),
		"error":     starlark.NewBuiltin("error", starError),
		"option":    starlark.NewBuiltin("option", option),
		"getenv":    starlark.NewBuiltin("getenv", getenv),
		"read_yaml": starlark.NewBuiltin("read_yaml", readYaml),
		"basename":  starlark.NewBuiltin("basename", starBasename),
		"glob":      starlark.NewBuiltin("glob", starGlob),
		"output":    starlark.NewBuiltin("output", output),
		"target":    starlark.NewBuiltin("target", target),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := scriptCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]string),
		optionValues: options,
		yamlCache:    make(map[string]interface{}),
		targets:      make([]*Target, 0),
		initPhase:    true,
	}
	thread.SetLocal("scriptCtx", &threadCtx)

	script, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read file")
	}

	displayName := simplifyPath(projectRoot, filename)
	globals, err := starlark.ExecFile(thread, displayName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", displayName, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", displayName)
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, eris.Errorf("%s did not declare a configure function", displayName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s did declare a configure value but it's not a function", displayName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, starlark.Tuple{starlark.Bool(watch)}, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.New(evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed configure call in %s", displayName)
	}

	return &Plan{
		Mode:    ModeFor(watch),
		Root:    cfg.Root,
		OutDir:  cfg.OutDir,
		Targets: threadCtx.targets,
		Options: threadCtx.options,
	}, nil
}
