// Beeflow CLI — инструмент командной строки для управления
// workflows через HTTP API Workflow Manager'а.
//
// Использование:
//
//	beeflow [--wfm-url URL] [--tm-url URL] [--json] <command> [args] [flags]
//
// Команды:
//
//	submit     Отправить bundle (YAML или JSON)
//	start      Запустить workflow
//	pause      Приостановить workflow
//	resume     Возобновить workflow
//	cancel     Отменить workflow
//	query      Статус workflow и tasks
//	list       Список workflows
//	delete     Удалить workflow
//	reexecute  Повторить архивированный workflow
//	outputs    Outputs tasks
//	status     Очереди Task Manager'а
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/beeflow/internal/cli"
	"github.com/shaiso/beeflow/internal/client"
	"github.com/shaiso/beeflow/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	var wfmURL, tmURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "beeflow",
		Short:         "Beeflow CLI — HPC workflow manager",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&wfmURL, "wfm-url", cfg.WFM.URL, "Workflow Manager URL")
	rootCmd.PersistentFlags().StringVar(&tmURL, "tm-url", cfg.TM.URL, "Task Manager URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	wfmFn := func() *client.WFM { return client.NewWFM(wfmURL, cfg.WFM.RequestTimeout) }
	tmFn := func() *client.TM { return client.NewTM(tmURL, cfg.WFM.RequestTimeout) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(cli.NewWorkflowCmds(wfmFn, outputFn)...)
	rootCmd.AddCommand(cli.NewStatusCmd(tmFn, outputFn))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
