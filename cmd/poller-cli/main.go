// Poller CLI — инструмент командной строки для сервиса poller.
//
// Использование:
//
//	poller [--api-url URL] [--json] <command> [subcommand] [flags]
//
// Команды:
//
//	stats   Состояние runner'а и сводка по вердиктам
//	event   Просмотр обработанных events и постановка в очередь
//	sim     Симуляция poller'а в процессе CLI
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Poller/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "poller",
		Short:         "Poller CLI — admission-controlled event processing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewEventCmd(clientFn, outputFn),
		cli.NewSimCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
