// Command anthrobridge runs the translating reverse proxy described in
// SPEC_FULL.md: an Anthropic Messages API front end backed by any
// OpenAI-Chat-Completions-compatible model server. The command layout
// (cobra root + subcommands) follows the teacher's internal/cli package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "anthrobridge",
		Short: "Translating reverse proxy from the Anthropic Messages API to OpenAI Chat Completions",
	}

	root.AddCommand(serveCommand())
	root.AddCommand(versionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the anthrobridge version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
