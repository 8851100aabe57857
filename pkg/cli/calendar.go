package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/colors"
	"github.com/harrisonrobin/famtasks/pkg/google"
	"github.com/harrisonrobin/famtasks/pkg/index"
	"github.com/harrisonrobin/famtasks/pkg/overdue"
	"github.com/spf13/cobra"
)

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	Short:   "Mirror tasks into Google Calendar",
	Aliases: []string{"cal"},
}

var calendarAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize calendar access in the browser",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		if err := auth.ForgetGoogleToken(ctx, a.store); err != nil {
			return err
		}
		if _, err := auth.GoogleClient(ctx, a.store, a.cfg.Calendar.Credentials, google.Scopes, true, a.logger); err != nil {
			return err
		}
		fmt.Println(okStyle("✓"), "Calendar access authorized")
		return nil
	}),
}

var calendarSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create, update and delete calendar events to match the tasks",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		tasks, err := a.engine.Load(ctx)
		if err != nil {
			return err
		}
		mirror, err := a.mirror(ctx)
		if err != nil {
			return err
		}
		report, err := mirror.Sync(ctx, tasks, a.engine.Aliases())
		if err != nil {
			return err
		}
		flagged, err := mirror.FlagOverdue(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%s %d events synced, %d deleted, %d flagged overdue\n", okStyle("✓"), report.Synced, report.Deleted, flagged)
		for _, ferr := range report.Failed {
			fmt.Println(failStyle("✗"), ferr)
		}
		return nil
	}),
}

// mirror opens the configured calendar with its persisted index, colours
// and overdue table.
func (a *app) mirror(ctx context.Context) (*google.Mirror, error) {
	hc, err := auth.GoogleClient(ctx, a.store, a.cfg.Calendar.Credentials, google.Scopes, false, a.logger)
	if err != nil {
		return nil, err
	}
	idx, err := index.Load(ctx, a.store)
	if err != nil {
		return nil, err
	}
	cc, err := colors.Load(ctx, a.store)
	if err != nil {
		return nil, err
	}
	table, err := overdue.Load(ctx, a.store)
	if err != nil {
		return nil, err
	}
	cal, err := google.NewClient(ctx, hc, a.cfg.Calendar.Name, idx, a.logger)
	if err != nil {
		return nil, err
	}
	return google.NewMirror(cal, idx, cc, table, a.logger), nil
}

// syncCalendarInBackground starts `famtasks calendar sync` detached so an
// edit does not wait on Google. It does nothing unless the calendar is enabled.
func (a *app) syncCalendarInBackground() {
	if !a.cfg.Calendar.Enabled {
		return
	}
	self, err := os.Executable()
	if err != nil {
		a.logger.Printf("could not find self: %v", err)
		return
	}
	args := []string{"calendar", "sync"}
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd := exec.Command(self, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		a.logger.Printf("could not start background calendar sync: %v", err)
		return
	}
	// Detach.
	_ = cmd.Process.Release()
}

func init() {
	calendarCmd.AddCommand(calendarAuthCmd, calendarSyncCmd)
	rootCmd.AddCommand(calendarCmd)
}
