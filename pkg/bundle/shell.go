package bundle

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// HelperBinary is the executable that implements the rm, mkdir and mv subcommands. When set, shell
// commands use it instead of the platform's tools so they behave the same everywhere.
var HelperBinary string

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && HelperBinary != "" {
		switch args[0] {
		case "mv", "rm", "mkdir":
			args = append([]string{HelperBinary}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// ShellCommand is a command line run by the embedded POSIX shell
type ShellCommand struct {
	Name   string
	Dir    string
	Env    map[string]string
	Script string
	Stdout io.Writer
	Stderr io.Writer
}

// RunCommand parses and executes the command line with "set -e" semantics
func RunCommand(ctx context.Context, cmd ShellCommand) error {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(cmd.Script), cmd.Name)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", cmd.Script)
	}

	stdout := cmd.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cmd.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(cmd.Dir),
		interp.Env(expand.ListEnviron(mergeEnv(cmd.Env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, stmt := range file.Stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stmt)
		log(ctx).Info().
			Str("task", cmd.Name).
			Bool("command", true).
			Msg(strBuffer.String())

		err = runner.Run(ctx, stmt)
		if err != nil {
			return eris.Wrapf(err, "command %s failed", strBuffer.String())
		}

		if runner.Exited() {
			return nil
		}
	}

	return nil
}
