package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	defaultFeedSize = 5
	maxFeedSize     = 20
)

// ParseIDArg extracts a numeric article ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("article ID is required")
	}
	first := strings.Fields(s)[0]
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid article ID %q", first)
	}
	return id, nil
}

// ParseSaveArgs extracts an article ID and an optional folder name.
// Format: <id> [folder...]
func ParseSaveArgs(args string) (int64, string, error) {
	id, err := ParseIDArg(args)
	if err != nil {
		return 0, "", err
	}
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	folder := ""
	if len(parts) == 2 {
		folder = strings.TrimSpace(parts[1])
	}
	return id, folder, nil
}

// ParseFeedSize parses the optional article count of /feed.
func ParseFeedSize(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return defaultFeedSize, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxFeedSize {
		return 0, fmt.Errorf("count must be between 1 and %d", maxFeedSize)
	}
	return n, nil
}

// ParseTerms splits a comma separated list, dropping blanks.
// The single word "none" yields an empty list.
func ParseTerms(args string) []string {
	if strings.EqualFold(strings.TrimSpace(args), "none") {
		return []string{}
	}
	return lo.Compact(lo.Map(strings.Split(args, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}
