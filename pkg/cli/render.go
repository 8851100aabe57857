package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"github.com/harrisonrobin/famtasks/pkg/tasksync"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	okStyle   = color.New(color.FgGreen).SprintFunc()
	warnStyle = color.New(color.FgYellow).SprintFunc()
	failStyle = color.New(color.FgRed, color.Bold).SprintFunc()
	idStyle   = color.New(color.FgCyan).SprintFunc()
)

func statusText(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return text.FgGreen.Sprint(s)
	case model.StatusInProgress:
		return text.FgYellow.Sprint(s)
	case model.StatusCancelled:
		return text.FgHiBlack.Sprint(s)
	default:
		return string(s)
	}
}

func dateRange(t model.Task) string {
	if t.EndDate == "" || t.EndDate == t.StartDate {
		return t.StartDate
	}
	return t.StartDate + " → " + t.EndDate
}

func renderTasks(w io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		text.FgGreen.Sprint("ID"),
		text.FgGreen.Sprint("Title"),
		text.FgGreen.Sprint("Type"),
		text.FgGreen.Sprint("Status"),
		text.FgGreen.Sprint("Dates"),
		text.FgGreen.Sprint("Coins"),
		text.FgGreen.Sprint("Child"),
	})
	for _, task := range tasks {
		id := task.ID.String()
		if task.ID.IsLocal() {
			id = warnStyle(id)
		}
		t.AppendRow(table.Row{
			id,
			task.Title,
			string(task.Type),
			statusText(task.Status),
			dateRange(task),
			strconv.Itoa(task.Coins),
			task.ChildName,
		})
	}
	t.Render()
}

func renderMembers(w io.Writer, members []api.Member) {
	if len(members) == 0 {
		fmt.Fprintln(w, "No family members.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		text.FgGreen.Sprint("ID"),
		text.FgGreen.Sprint("Name"),
		text.FgGreen.Sprint("Age"),
		text.FgGreen.Sprint("Coins"),
	})
	total := 0
	for _, m := range members {
		age := ""
		if m.Age > 0 {
			age = strconv.Itoa(m.Age)
		}
		t.AppendRow(table.Row{strconv.FormatInt(m.ID, 10), m.Name, age, strconv.Itoa(m.Coins)})
		total += m.Coins
	}
	t.AppendFooter(table.Row{"", "Total", "", strconv.Itoa(total)})
	t.Render()
}

func renderStatus(w io.Writer, st tasksync.Status) {
	line := fmt.Sprintf("%d tasks, %s", st.Count, st.State)
	if !st.LastSync.IsZero() {
		line += ", synced " + st.LastSync.Format(time.TimeOnly)
	}
	switch st.State {
	case tasksync.Ready:
		fmt.Fprintln(w, okStyle(line))
	case tasksync.Degraded:
		if st.Err != nil {
			line += " (" + st.Err.Error() + ")"
		}
		fmt.Fprintln(w, warnStyle(line))
	default:
		fmt.Fprintln(w, line)
	}
}
