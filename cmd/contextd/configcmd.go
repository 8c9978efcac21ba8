package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration options",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every option and its value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, o := range config.Options {
				v, _ := cfg.Get(o)
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", o, v)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <option>",
		Short: "Print one option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(config.Option(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <option> <value>",
		Short: "Validate and store one option in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := cfg.Set(config.Option(args[0]), args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return config.Save(cfg, configFile)
		},
	}

	cmd.AddCommand(list, get, set)
	return cmd
}
