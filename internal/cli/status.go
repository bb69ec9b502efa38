package cli

import (
	"strconv"

	"github.com/shaiso/beeflow/internal/client"
	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду статуса Task Manager'а.
func NewStatusCmd(clientFn func() *client.TM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task manager queue lengths",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().Stats(cmd.Context())
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"SUBMIT", "JOB", "UPDATE"},
				[][]string{{strconv.Itoa(stats.Submit), strconv.Itoa(stats.Job), strconv.Itoa(stats.Update)}},
				stats,
			)
			return nil
		},
	}
}
