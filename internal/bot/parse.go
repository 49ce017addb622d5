package bot

import (
	"fmt"
	"strconv"
	"strings"

	"loginwatch/internal/model"
)

const (
	defaultHistory = 10
	maxHistory     = 50
)

// ParseTargetArg resolves the first argument to a target, either by its
// 1-based position in targets or by its id. The remaining fields are returned.
func ParseTargetArg(args string, targets []model.Target) (model.Target, []string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return model.Target{}, nil, fmt.Errorf("target number is required")
	}

	first, rest := parts[0], parts[1:]
	if n, err := strconv.Atoi(first); err == nil {
		if n < 1 || n > len(targets) {
			return model.Target{}, nil, fmt.Errorf("target #%d not found", n)
		}
		return targets[n-1], rest, nil
	}
	for _, t := range targets {
		if t.ID == first {
			return t, rest, nil
		}
	}
	return model.Target{}, nil, fmt.Errorf("target %q not found", first)
}

// ParseCount reads an optional count from args, bounded to [1, limit].
func ParseCount(args []string, def, limit int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > limit {
		return 0, fmt.Errorf("count must be between 1 and %d", limit)
	}
	return n, nil
}

// ParseIDArg extracts a numeric capture ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("capture ID is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.Fields(s)[0], "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid capture ID %q", s)
	}
	return id, nil
}
