package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var flagDebug bool

var rootCmd = &cobra.Command{
	Use:   "hashivault-write-file [ARGS_FILE]",
	Short: "Write a file, base64 or raw, under one key of a Vault KV secret",
	Long: `Reads --dest, logs in to Vault and stores the file under --key of --secret.

Given a single argument naming a JSON args file, runs as an Ansible binary
module: parameters come from the file and the result is printed as JSON on
stdout.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if flagDebug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
	RunE: runWrite,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", os.Getenv("HASHIVAULT_DEBUG") != "", "Enable debug logging")
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
