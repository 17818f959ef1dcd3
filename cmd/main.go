package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/distbuild/pkg"
	"github.com/ngld/distbuild/pkg/bundle"
)

var rootCmd = &cobra.Command{
	Use:   "distbuild",
	Short: "Builds the distributable formats of the key-value storage library",
	Long: `distbuild declares the library's build targets (ESM, CommonJS, IIFE and their compat
variants, the test harness and the size tests) and hands them to esbuild.
Targets come from the built-in plan or from a bundle.star script in the project root.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file (default: <root>/distbuild.yml)")
	rootCmd.PersistentFlags().String("root", "", "project root (default: nearest directory with distbuild.yml, bundle.star or package.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "show debug messages")
}

func Execute() {
	if exe, err := os.Executable(); err == nil {
		bundle.HelperBinary = exe
	}

	cobra.CheckErr(rootCmd.Execute())
}

// session bundles what every subcommand needs
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    bundle.Config
	logger *zerolog.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(NewConsoleWriter(os.Stderr)).Level(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = bundle.WithLogger(ctx, &logger)

	root, err := cmd.Flags().GetString("root")
	if err != nil {
		cancel()
		return nil, err
	}

	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			cancel()
			return nil, err
		}

		root, err = pkg.FindProjectRoot(wd)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		cancel()
		return nil, err
	}

	cfg, err := bundle.LoadConfig(root, cfgPath)
	if err != nil {
		cancel()
		return nil, err
	}

	logger.Debug().Str("path", root).Msgf("project root is %s", root)
	return &session{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: &logger,
	}, nil
}

// splitOptions separates key=value script options from the remaining arguments
func splitOptions(args []string) (map[string]string, []string) {
	options := make(map[string]string)
	rest := make([]string, 0)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			rest = append(rest, part)
		}
	}

	return options, rest
}
