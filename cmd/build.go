package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/distbuild/pkg"
	"github.com/ngld/distbuild/pkg/bundle"
)

var buildCmd = &cobra.Command{
	Use:   "build [option=value...]",
	Short: "Cleans the output directory and builds all declared targets",
	Long: `Without --watch, the library is built as ESM, CommonJS and minified IIFE plus the compat
variants of each and every size test is bundled on its own. With --watch, only the test harness
is built and rebuilt on every change.

option=value arguments are passed to the option() calls of bundle.star.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.cancel()

		watch, err := cmd.Flags().GetBool("watch")
		if err != nil {
			return err
		}

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		jobs, err := cmd.Flags().GetInt("jobs")
		if err != nil {
			return err
		}

		serve, err := cmd.Flags().GetString("serve")
		if err != nil {
			return err
		}

		skipTypes, err := cmd.Flags().GetBool("skip-types")
		if err != nil {
			return err
		}

		report, err := cmd.Flags().GetString("report")
		if err != nil {
			return err
		}

		options, rest := splitOptions(args)
		if len(rest) > 0 {
			return eris.Errorf("unexpected arguments %v, build only accepts option=value pairs", rest)
		}

		pkg.PrintTask("Declaring targets")
		plan, err := bundle.Configure(s.ctx, s.cfg, watch, options)
		if err != nil {
			return err
		}

		compiler := &bundle.Compiler{
			Config:    s.cfg,
			SkipTypes: skipTypes,
		}

		if watch && !dryRun {
			pkg.PrintTask("Watching")
			return bundle.Watch(s.ctx, plan, compiler, bundle.WatchOptions{Serve: serve})
		}

		pkg.PrintTask("Building")
		_, err = bundle.Run(s.ctx, plan, compiler, bundle.RunOptions{
			Jobs:     jobs,
			DryRun:   dryRun,
			Progress: os.Stderr,
		})
		if err != nil {
			pkg.PrintError("build failed")
			return err
		}

		if plan.Mode == bundle.ModeProduction && !dryRun {
			pkg.PrintTask("Measuring size tests")
			sizes, err := bundle.MeasureSizes(plan)
			if err != nil {
				return err
			}

			err = bundle.PrintSizes(os.Stdout, sizes)
			if err != nil {
				return err
			}

			if report != "" {
				err = bundle.WriteSizes(report, sizes)
				if err != nil {
					return err
				}
				pkg.PrintSubtask("wrote " + report)
			}
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolP("watch", "w", false, "development mode; build the test harness and rebuild on changes")
	buildCmd.Flags().BoolP("dry", "n", false, "dry run; only print the declared outputs, don't build anything")
	buildCmd.Flags().IntP("jobs", "j", 1, "number of targets to build in parallel")
	buildCmd.Flags().String("serve", "", "in watch mode, serve the test harness on this host:port")
	buildCmd.Flags().Bool("skip-types", false, "don't run the TypeScript compiler for declarations")
	buildCmd.Flags().String("report", "", "write the size report as JSON to this file")

	rootCmd.AddCommand(buildCmd)
}
