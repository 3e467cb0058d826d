// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"todo/internal/service"
)

// SortForDisplay returns the tasks incomplete first, then newest first.
// The input slice is not modified.
func SortForDisplay(tasks []service.Task) []service.Task {
	out := make([]service.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return !out[i].Completed
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FormatTask formats a task line.
// Format: "{N:>4}  [x] {TITLE}\n", followed by an indented description line if set.
func FormatTask(w io.Writer, num int, task service.Task) {
	mark := " "
	if task.Completed {
		mark = "x"
	}
	fmt.Fprintf(w, "%4d  [%s] %s\n", num, mark, normalizeTitle(task.Title))
	if desc := oneLine(task.Description); strings.TrimSpace(desc) != "" {
		fmt.Fprintf(w, "          %s\n", desc)
	}
}

// FormatUser prints the profile of the current user.
// expiry is omitted when empty.
func FormatUser(w io.Writer, user service.User, expiry string) {
	fmt.Fprintf(w, "email:    %s\n", user.Email)
	fmt.Fprintf(w, "id:       %s\n", user.ID)
	fmt.Fprintf(w, "since:    %s\n", user.CreatedAt.UTC().Format(time.DateOnly))
	fmt.Fprintf(w, "picture:  %s\n", describePicture(user.ProfilePicture))
	if expiry != "" {
		fmt.Fprintf(w, "session:  expires %s\n", expiry)
	}
}

func describePicture(pic string) string {
	switch {
	case pic == "":
		return "(none)"
	case strings.HasPrefix(pic, "data:"):
		mime, _, _ := strings.Cut(strings.TrimPrefix(pic, "data:"), ";")
		return "uploaded " + mime
	default:
		return pic
	}
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = oneLine(title)
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
