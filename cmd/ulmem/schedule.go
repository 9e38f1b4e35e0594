package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e6labs/ultramemory/internal/schedule"
)

var (
	// schedule command flags
	schedName     string
	schedArgs     string
	schedDisabled bool
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleDisableCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleLogsCmd)

	scheduleAddCmd.Flags().StringVar(&schedName, "name", "", "task name (defaults to <agent>-task-<id>)")
	scheduleAddCmd.Flags().StringVar(&schedArgs, "args", "", "argument passed to the agent on each run")
	scheduleAddCmd.Flags().BoolVar(&schedDisabled, "disabled", false, "create the task without enabling it")
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled agent tasks",
	Long: `Manage the cron-style task schedule. Tasks run inside the daemon;
changes here are picked up on its next reload.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <agent> <cron>",
	Short: "Schedule an agent",
	Long: `Schedule an agent with a five-field cron expression.

Examples:
  ulmem schedule add consolidator "0 3 * * *"
  ulmem schedule add librarian "*/30 * * * *" --args ~/notes/inbox.md
  ulmem schedule add deleter "0 8 * * 1" --args "temporal scratch" --disabled`,
	Args: cobra.ExactArgs(2),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	RunE:  runScheduleList,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(args[0], true) },
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(args[0], false) },
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a task now",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRun,
}

var scheduleLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show a task's run log",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleLogs,
}

func parseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	task, err := e.scheduleStore().Add(schedName, args[0], args[1], schedArgs, !schedDisabled)
	if err != nil {
		return fmt.Errorf("add task: %w", err)
	}

	if flagJSON {
		return outputJSON(task)
	}
	fmt.Printf("Task %d: %s\n", task.ID, task.Name)
	fmt.Printf("Schedule: %s (%s)\n", task.Cron, schedule.Describe(task.Cron))
	if !task.Enabled {
		fmt.Println("Disabled")
	}
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	tasks, err := e.scheduleStore().List()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if flagJSON {
		return outputJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAGENT\tSCHEDULE\tENABLED\tLAST RUN")
	for _, task := range tasks {
		lastRun := task.LastRun
		if lastRun == "" {
			lastRun = "never"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n",
			task.ID, task.Name, task.Agent, schedule.Describe(task.Cron), task.Enabled, lastRun)
	}
	return w.Flush()
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.scheduleStore().Remove(id); err != nil {
		return err
	}
	fmt.Printf("Removed task %d\n", id)
	return nil
}

func setScheduleEnabled(arg string, enabled bool) error {
	id, err := parseTaskID(arg)
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.scheduleStore().SetEnabled(id, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Enabled task %d\n", id)
	} else {
		fmt.Printf("Disabled task %d\n", id)
	}
	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.runner.RunTask(cmd.Context(), id); err != nil {
		return fmt.Errorf("run task %d: %w", id, err)
	}

	// The run is recorded in the task log either way.
	log, err := a.runner.ReadLog(id)
	if err == nil && log != "" {
		fmt.Print(lastLine(log))
	}
	return nil
}

func runScheduleLogs(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}

	runner := schedule.NewRunner(e.scheduleStore(), nil, e.scheduleLogsDir(), e.logger)
	log, err := runner.ReadLog(id)
	if err != nil {
		return fmt.Errorf("read log for task %d: %w", id, err)
	}
	fmt.Print(log)
	return nil
}

// lastLine returns the final non-empty line of s, newline-terminated.
func lastLine(s string) string {
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed + "\n"
}
