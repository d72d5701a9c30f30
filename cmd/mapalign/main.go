package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sugarme/mapalign/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mapalign",
		Short:         "Align cadastral polygons to aerial imagery with a double U-Net",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(
		newInitCmd(),
		newTileCmd(),
		newTrainCmd(),
		newEvalCmd(),
		newPredictCmd(),
		newEDACmd(),
	)

	return root
}

func newInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default run configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%v already exists", out)
			}
			if err := config.Default().Save(out); err != nil {
				return err
			}
			fmt.Printf("Wrote %v\n", out)

			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "mapalign.yaml", "config file to create")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
