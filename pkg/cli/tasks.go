package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/model"
	"github.com/harrisonrobin/famtasks/pkg/tasksync"
	"github.com/spf13/cobra"
)

var (
	listDate string
	listType string

	addDescription string
	addType        string
	addCoins       int
	addStart       string
	addEnd         string
	addRepeating   bool
	addChildID     int64
	addChildName   string
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Short:   "List and edit family tasks",
	Aliases: []string{"t"},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "Show tasks, optionally for one day and type",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		typ, err := model.ParseType(listType)
		if err != nil {
			return err
		}
		tasks, err := a.engine.Load(ctx)
		if err != nil {
			return err
		}
		if listDate != "" {
			day, err := parseDay(listDate, time.Now())
			if err != nil {
				return err
			}
			tasks = a.engine.FilterByDateAndType(day, typ)
		} else if typ != model.TypeAll {
			tasks = filterType(tasks, typ)
		}
		renderTasks(os.Stdout, tasks)
		renderStatus(os.Stdout, a.engine.Status())
		return nil
	}),
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			typ, err := model.ParseType(addType)
			if err != nil {
				return err
			}
			start, err := parseDay(addStart, time.Now())
			if err != nil {
				return err
			}
			d := model.Draft{
				Title:       args[0],
				Description: addDescription,
				Type:        typ,
				Coins:       addCoins,
				StartDate:   start,
				IsRepeating: addRepeating,
				ChildID:     addChildID,
				ChildName:   addChildName,
			}
			if addEnd != "" {
				if d.EndDate, err = parseDay(addEnd, time.Now()); err != nil {
					return err
				}
			}
			if _, err := a.engine.Load(ctx); err != nil {
				a.logger.Printf("load before create: %v", err)
			}
			t, err := a.engine.CreateTask(ctx, d)
			if err != nil {
				return err
			}
			if t.ID.IsLocal() {
				fmt.Printf("%s Task %s saved locally, it will be uploaded after login\n", warnStyle("!"), idStyle(t.ID))
				return nil
			}
			fmt.Printf("%s Task %s created\n", okStyle("✓"), idStyle(t.ID))
			a.syncCalendarInBackground()
			return nil
		})(cmd, args)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a task's status (todo, in-progress, completed, cancelled)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			id, err := model.ParseID(args[0])
			if err != nil {
				return err
			}
			status, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			if _, err := a.engine.Load(ctx); err != nil {
				return err
			}
			if err := a.engine.UpdateStatus(ctx, id, status); err != nil {
				return err
			}
			fmt.Printf("%s Task %s is now %s\n", okStyle("✓"), idStyle(id), statusText(status))
			a.syncCalendarInBackground()
			return nil
		})(cmd, args)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Delete a task",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			id, err := model.ParseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.engine.Load(ctx); err != nil {
				return err
			}
			if _, err := a.engine.DeleteTask(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Task %s deleted\n", okStyle("✓"), idStyle(id))
			a.syncCalendarInBackground()
			return nil
		})(cmd, args)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the task list in sync and print it whenever it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var engine *tasksync.Engine
		redraw := make(chan struct{}, 1)
		onChange := func() {
			select {
			case redraw <- struct{}{}:
			default:
			}
		}
		return withApp(func(ctx context.Context, a *app) error {
			engine = a.engine
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-redraw:
						if st := engine.Status(); st.State != tasksync.Loading {
							fmt.Println()
							renderTasks(os.Stdout, engine.Tasks())
							renderStatus(os.Stdout, st)
						}
					}
				}
			}()
			if _, err := engine.Load(ctx); err != nil {
				a.logger.Printf("initial load: %v", err)
			}
			err := engine.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}, tasksync.WithOnChange(onChange))(cmd, args)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listDate, "date", "d", "", "only tasks active on this day (YYYY-MM-DD, today or tomorrow)")
	listCmd.Flags().StringVarP(&listType, "type", "t", "all", "personal, child, family or all")

	addCmd.Flags().StringVar(&addDescription, "description", "", "task description")
	addCmd.Flags().StringVarP(&addType, "type", "t", "personal", "personal, child or family")
	addCmd.Flags().IntVarP(&addCoins, "coins", "c", 0, "coins awarded on completion")
	addCmd.Flags().StringVar(&addStart, "start", "today", "first day (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addEnd, "end", "", "last day (defaults to the first day)")
	addCmd.Flags().BoolVar(&addRepeating, "repeat", false, "mark the task as repeating")
	addCmd.Flags().Int64Var(&addChildID, "child-id", 0, "assign to this child")
	addCmd.Flags().StringVar(&addChildName, "child", "", "child's name")

	tasksCmd.AddCommand(listCmd, addCmd, statusCmd, deleteCmd, watchCmd)
	rootCmd.AddCommand(tasksCmd)
}

// parseDay accepts YYYY-MM-DD, "today" and "tomorrow".
func parseDay(s string, now time.Time) (string, error) {
	switch s {
	case "", "today":
		return model.Day(now), nil
	case "tomorrow":
		return model.Day(now.AddDate(0, 0, 1)), nil
	}
	return model.NormalizeDay(s)
}

func filterType(tasks []model.Task, typ model.Type) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}
