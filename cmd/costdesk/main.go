package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "costdesk",
		Short:         "Cloud cost estimation chat and pricing-sheet uploads",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newChatCmd(opts),
		newQuotaCmd(opts),
		newUploadCmd(opts),
		newFilesCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newActivityCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
