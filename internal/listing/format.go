package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tandem/pkg/sample"
)

const rowFormat = "%-8s %-16s %-8s %-6s %-6s %-6s %-6s %s\n"

// FormatTable writes samples as a table to w, oldest first as given.
// Ages are relative to now. Returns the number of samples formatted.
func FormatTable(w io.Writer, samples []sample.Sample, node string, now time.Time) int {
	if len(samples) == 0 {
		fmt.Fprintf(w, "No samples found on node '%s'\n", node)
		return 0
	}

	fmt.Fprintf(w, "Samples on node '%s':\n\n", node)

	fmt.Fprintf(w, rowFormat, "ID", "TIME", "AGE", "HRV", "HR", "SLEEP", "SCORE", "CATEGORY")
	fmt.Fprintf(w, rowFormat, "--------", "----------------", "--------", "------", "------", "------", "------", "--------")

	for _, s := range samples {
		scored := Scored(s)
		fmt.Fprintf(w, rowFormat,
			formatID(s.ID),
			s.Timestamp.UTC().Format("2006-01-02 15:04"),
			formatAge(s.Timestamp, now),
			s.Inputs.HRV.String(),
			s.Inputs.HeartRate.String(),
			s.Inputs.SleepHours.String(),
			fmt.Sprintf("%.1f", scored.Score),
			scored.Category,
		)
	}

	countMsg := "sample"
	if len(samples) != 1 {
		countMsg = "samples"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(samples), countMsg)

	return len(samples)
}

// FormatJSONL writes one scored sample per line.
func FormatJSONL(w io.Writer, samples []sample.Sample) error {
	for _, s := range samples {
		data, err := json.Marshal(Scored(s))
		if err != nil {
			return fmt.Errorf("failed to marshal sample to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one scored sample as indented JSON.
func FormatSingleJSON(w io.Writer, s sample.Sample) error {
	data, err := json.MarshalIndent(Scored(s), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sample to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates a sample ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders how long before now t was, e.g. "2m ago".
// Samples stamped after now (clock skew between nodes) show "future".
func formatAge(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < 0:
		return "future"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
