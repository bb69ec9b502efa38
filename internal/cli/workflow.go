package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/client"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/spf13/cobra"
)

// NewWorkflowCmds создаёт команды управления workflows.
func NewWorkflowCmds(clientFn func() *client.WFM, outputFn func() *Output) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCmd(clientFn, outputFn),
		newTransitionCmd("start", "Start a submitted workflow", (*client.WFM).Start, clientFn, outputFn),
		newTransitionCmd("pause", "Pause a running workflow", (*client.WFM).Pause, clientFn, outputFn),
		newTransitionCmd("resume", "Resume a paused workflow", (*client.WFM).Resume, clientFn, outputFn),
		newCancelCmd(clientFn, outputFn),
		newQueryCmd(clientFn, outputFn),
		newListCmd(clientFn, outputFn),
		newDeleteCmd(clientFn, outputFn),
		newReexecuteCmd(clientFn, outputFn),
		newOutputsCmd(clientFn, outputFn),
	}
}

func newSubmitCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	var start bool

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a workflow bundle (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFn()
			out := outputFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			id, err := c.Submit(cmd.Context(), data)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Workflow submitted: %s", id))

			if start {
				status, err := c.Start(cmd.Context(), id)
				if err != nil {
					return err
				}
				printStatus(out, status)
				return nil
			}

			out.Print([]string{"ID"}, [][]string{{id.String()}}, map[string]string{"id": id.String()})
			return nil
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "Start the workflow right after submission")

	return cmd
}

func newTransitionCmd(
	use, short string,
	action func(*client.WFM, context.Context, uuid.UUID) (*domain.WorkflowStatus, error),
	clientFn func() *client.WFM,
	outputFn func() *Output,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " WF_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			status, err := action(clientFn(), cmd.Context(), id)
			if err != nil {
				return err
			}

			printStatus(outputFn(), status)
			return nil
		},
	}
}

func newCancelCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel WF_ID",
		Short: "Cancel a workflow and its running tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			lines, err := clientFn().Cancel(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow cancelled: %s", id))
			out.Lines(lines)
			return nil
		},
	}
}

func newQueryCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "query WF_ID",
		Short: "Show workflow and task states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			status, err := clientFn().Query(cmd.Context(), id)
			if err != nil {
				return err
			}

			printStatus(outputFn(), status)
			return nil
		},
	}
}

func newListCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := clientFn().List(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(list))
			for i, wf := range list {
				rows[i] = []string{wf.ID.String(), wf.Name, string(wf.State), strconv.Itoa(len(wf.Tasks))}
			}

			outputFn().Print([]string{"ID", "NAME", "STATE", "TASKS"}, rows, list)
			return nil
		},
	}
}

func newDeleteCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete WF_ID",
		Short: "Delete a workflow that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := clientFn().Delete(cmd.Context(), id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Workflow deleted: %s", id))
			return nil
		},
	}
}

func newReexecuteCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reexecute WF_ID",
		Short: "Submit a copy of an archived workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			newID, err := clientFn().Reexecute(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow re-executed: %s -> %s", id, newID))
			out.Print([]string{"ID"}, [][]string{{newID.String()}}, map[string]string{"id": newID.String()})
			return nil
		},
	}
}

func newOutputsCmd(clientFn func() *client.WFM, outputFn func() *Output) *cobra.Command {
	var taskIDStr string

	cmd := &cobra.Command{
		Use:   "outputs WF_ID",
		Short: "Show outputs reported by tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var taskID *uuid.UUID
			if taskIDStr != "" {
				parsed, err := parseID(taskIDStr)
				if err != nil {
					return err
				}
				taskID = &parsed
			}

			records, err := clientFn().Outputs(cmd.Context(), id, taskID)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, rec := range records {
				for key, value := range rec.Output {
					rows = append(rows, []string{
						rec.TaskID.String(),
						rec.Timestamp.Format("2006-01-02 15:04:05"),
						key,
						fmt.Sprint(value),
					})
				}
			}

			outputFn().Print([]string{"TASK_ID", "TIME", "OUTPUT", "VALUE"}, rows, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskIDStr, "task-id", "", "Filter by task ID")

	return cmd
}

// printStatus выводит статус workflow и таблицу его tasks.
func printStatus(out *Output, status *domain.WorkflowStatus) {
	if !out.jsonMode {
		fmt.Fprintf(out.w, "%s %s %s\n", status.Name, status.ID, status.State)
	}

	rows := make([][]string, len(status.Tasks))
	for i, t := range status.Tasks {
		rows[i] = []string{t.ID.String(), t.Name, string(t.State)}
	}
	out.Print([]string{"TASK_ID", "NAME", "STATE"}, rows, status)
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
