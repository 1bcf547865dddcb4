package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathwise/tasksync/reconcile"
	"github.com/pathwise/tasksync/roadmap"
	"github.com/pathwise/tasksync/task"
)

const dateLayout = "2006-01-02"

func newListCommand(root *rootFlags) *cobra.Command {
	var status, roadmapID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var want task.Status
			if status != "" {
				st, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				want = st
			}

			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			var shown []task.Task
			for _, t := range a.Store.GetTasks(root.user) {
				if want != "" && t.Status != want {
					continue
				}
				if roadmapID != "" && t.RoadmapID != roadmapID {
					continue
				}
				shown = append(shown, t)
			}
			printTasks(cmd.OutOrStdout(), shown)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	cmd.Flags().StringVar(&roadmapID, "roadmap", "", "only tasks imported from this roadmap")
	return cmd
}

func printTasks(out io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(dateLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, label(string(t.Status)), label(string(t.Priority)), due, t.Title)
	}
	w.Flush() //nolint:errcheck
}

// taskFlags are the editable fields shared by add and update.
type taskFlags struct {
	title       string
	description string
	status      string
	priority    string
	taskType    string
	due         string
	tags        []string
}

func (f *taskFlags) register(cmd *cobra.Command, withTitle bool) {
	if withTitle {
		cmd.Flags().StringVar(&f.title, "title", "", "task title")
	}
	cmd.Flags().StringVar(&f.description, "description", "", "task description")
	cmd.Flags().StringVar(&f.status, "status", "", "pending, in_progress, completed or cancelled")
	cmd.Flags().StringVar(&f.priority, "priority", "", "high, medium or low")
	cmd.Flags().StringVar(&f.taskType, "type", "", "milestone, learning, practice, skill or manual")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
}

// patch builds a Patch from the flags the user actually set.
func (f *taskFlags) patch(cmd *cobra.Command) (task.Patch, error) {
	var p task.Patch
	changed := cmd.Flags().Changed
	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("status") {
		st := task.Status(f.status)
		p.Status = &st
	}
	if changed("priority") {
		pr := task.Priority(f.priority)
		p.Priority = &pr
	}
	if changed("type") {
		ty := task.Type(f.taskType)
		p.Type = &ty
	}
	if changed("due") {
		d, err := time.ParseInLocation(dateLayout, f.due, time.Local)
		if err != nil {
			return p, fmt.Errorf("invalid --due: %w", err)
		}
		p.DueDate = &d
	}
	if changed("tag") {
		p.Tags = f.tags
	}
	return p, p.Validate()
}

func newAddCommand(root *rootFlags) *cobra.Command {
	flags := &taskFlags{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			t := task.Task{Title: args[0], Tags: p.Tags, DueDate: p.DueDate}
			if p.Description != nil {
				t.Description = *p.Description
			}
			if p.Status != nil {
				t.Status = *p.Status
			}
			if p.Priority != nil {
				t.Priority = *p.Priority
			}
			if p.Type != nil {
				t.Type = *p.Type
			}

			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			created, ok := a.Store.AddTask(cmd.Context(), root.user, t)
			if !ok {
				return errors.New("task not saved")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", created.ID)
			return nil
		},
	}

	flags.register(cmd, false)
	return cmd
}

func newUpdateCommand(root *rootFlags) *cobra.Command {
	flags := &taskFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			if p.Empty() {
				return errors.New("nothing to update")
			}

			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			updated, ok := a.Store.UpdateTask(cmd.Context(), root.user, args[0], p)
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", updated.ID, label(string(updated.Status)))
			return nil
		},
	}

	flags.register(cmd, true)
	return cmd
}

func newDeleteCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if !a.Store.DeleteTask(cmd.Context(), root.user, args[0]) {
				return fmt.Errorf("task %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newClearCommand(root *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete all tasks without --yes")
			}
			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			a.Store.ClearAll(cmd.Context(), root.user)
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared all tasks")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func newImportCommand(root *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <roadmap.json>",
		Short: "Export a roadmap's milestones into the task list",
		Long: `Creates one task per roadmap milestone with a due date derived from the
phase schedule. If tasks from the same roadmap already exist the import is
skipped unless --yes is given, in which case duplicates are created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck
			rm, err := roadmap.Load(f)
			if err != nil {
				return err
			}

			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			res, err := a.Importer.Import(cmd.Context(), root.user, rm, func(int) bool { return yes })
			if err != nil {
				return err
			}
			if res.Declined {
				fmt.Fprintf(out, "%d tasks from roadmap %s already exist; re-run with --yes to import duplicates\n", res.Existing, rm.ID)
				return nil
			}
			fmt.Fprintf(out, "Exported %d tasks\n", len(res.Tasks))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "import even if tasks from this roadmap exist")
	return cmd
}

func newMilestoneCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "milestone <roadmap> <phase> <index> <status>",
		Short: "Set a roadmap milestone's status on its task",
		Long:  `Status is one of pending, in_progress, completed or skipped. A skipped milestone cancels its task.`,
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid phase %q", args[1])
			}
			idx, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid milestone index %q", args[2])
			}
			status, err := task.ParseMilestoneStatus(args[3])
			if err != nil {
				return err
			}

			a, err := root.open()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			updated, ok := a.Reconciler.UpdateTaskStatus(cmd.Context(), root.user, reconcile.Update{
				RoadmapID:      args[0],
				PhaseNumber:    &phase,
				MilestoneIndex: &idx,
				Status:         status,
			})
			if !ok {
				return fmt.Errorf("no task for milestone %s/%d/%d", args[0], phase, idx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", updated.Title, label(string(updated.Status)))
			return nil
		},
	}
}
