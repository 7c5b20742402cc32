package replay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solatis/mutguard/internal/intercept"
)

// FormatText renders run results for a terminal.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	failedScripts := 0
	for _, r := range results {
		status := "PASS"
		if r.Failed > 0 {
			status = "FAIL"
			failedScripts++
		}
		fmt.Fprintf(&b, "%s  %s (%d/%d steps)\n", status, r.Name, r.Passed, r.Total)

		for _, s := range r.Steps {
			mark := " "
			if !s.Passed {
				mark = "!"
			}
			line := fmt.Sprintf("  %s %2d %-8s %-20s %-5s count=%d", mark, s.Index, s.Op, s.Path, s.Actual, s.MutationCount)
			if s.Error != "" {
				line += "  " + s.Error
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}

		snap := r.Snapshot
		fmt.Fprintf(&b, "  value: %s\n", intercept.Render(snap.Value))
		fmt.Fprintf(&b, "  mutations: %d/%d  violations: %d  frozen: %t  violated: %t\n",
			snap.MutationCount, snap.MaxMutations, snap.ViolationCount, snap.Frozen, snap.Violated)
		fmt.Fprintf(&b, "  callbacks: mutate=%d last=%d limit=%d violation=%d\n",
			r.Callbacks.Mutate, r.Callbacks.LastMutation, r.Callbacks.LimitExceeded, r.Callbacks.Violation)
	}

	if failedScripts > 0 {
		fmt.Fprintf(&b, "\n%d of %d scripts had unexpected outcomes.\n", failedScripts, len(results))
	}
	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
