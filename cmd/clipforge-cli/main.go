// ClipForge CLI — инструмент командной строки для постановки jobs
// и наблюдения за их прогрессом через HTTP API.
//
// Использование:
//
//	clipforge [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job  Управление jobs: submit, list, show, status, watch
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "clipforge",
		Short:         "ClipForge CLI — AI video generation jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewJobCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
