package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ngld/distbuild/pkg/bundle"
)

var planCmd = &cobra.Command{
	Use:   "plan [option=value...]",
	Short: "Prints the declared targets as YAML",
	Long: `Runs the same declaration step as build and prints the result without building anything.
Like every build, this clears the output directory first.`,
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

		options, rest := splitOptions(args)
		if len(rest) > 0 {
			return eris.Errorf("unexpected arguments %v", rest)
		}

		plan, err := bundle.Configure(s.ctx, s.cfg, watch, options)
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()

		return encoder.Encode(plan)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Removes the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.cancel()

		return bundle.Clean(s.ctx, s.cfg)
	},
}

func init() {
	planCmd.Flags().BoolP("watch", "w", false, "show the development plan")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(cleanCmd)
}
