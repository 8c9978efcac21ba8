// Package main is the entry point for the contextd daemon and CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags.
var (
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contextd",
		Short: "Per-conversation context store with daily compaction",
		Long: `contextd keeps an append-only live log, a system prompt and a
long-term archive for every conversation on the local filesystem, and once
a day folds each live log into its archive through a summarizer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "contextd.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data_dir option")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newAppendCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newPromptCmd())
	root.AddCommand(newCompactCmd())
	root.AddCommand(newConversationsCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newExportCmd())

	return root
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
