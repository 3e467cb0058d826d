package commands

import (
	"fmt"
	"strconv"
	"unicode"

	"todo/internal/apierr"
	"todo/internal/output"
	"todo/internal/service"
)

// ErrTaskRefRequired indicates no task number was provided.
var ErrTaskRefRequired = apierr.Validation("", "task number required")

// ParseTaskRef parses the task number in args[0].
// Numbers are 1-based positions in the display order printed by list.
func ParseTaskRef(args []string) (int, error) {
	if len(args) == 0 {
		return 0, ErrTaskRefRequired
	}
	ref := args[0]
	if !isAllDigits(ref) {
		return 0, apierr.Validation("", fmt.Sprintf("invalid task number: %s", ref))
	}
	num, err := strconv.Atoi(ref)
	if err != nil || num < 1 {
		return 0, apierr.Validation("", fmt.Sprintf("task number out of range: %s", ref))
	}
	return num, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ResolveTaskRef returns the task shown at position num by list.
func ResolveTaskRef(svc service.Service, num int) (service.Task, error) {
	tasks := output.SortForDisplay(svc.Tasks())
	if num < 1 || num > len(tasks) {
		return service.Task{}, apierr.Validation("", fmt.Sprintf("task number out of range: %d", num))
	}
	return tasks[num-1], nil
}

// resolveArgs parses and resolves the task number in args.
func resolveArgs(svc service.Service, args []string) (service.Task, error) {
	num, err := ParseTaskRef(args)
	if err != nil {
		return service.Task{}, err
	}
	return ResolveTaskRef(svc, num)
}
