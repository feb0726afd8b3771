// Package printer writes the CLI's human-facing messages.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/tandem/pkg/scoring"
	"github.com/fatih/color"
)

// Output destinations. Tests swap them for buffers.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func init() {
	// Colour stays on when piped unless NO_COLOR is set
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// SetColor turns coloured output on or off.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// Success prints a green message with a checkmark prefix.
func Success(format string, a ...any) {
	green.Fprint(Stdout, withPrefix("✓", fmt.Sprintf(format, a...)))
}

// Info prints an uncoloured message.
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Warning prints a yellow message with a warning prefix to stderr.
func Warning(format string, a ...any) {
	yellow.Fprint(Stderr, withPrefix("⚠️ ", fmt.Sprintf(format, a...)))
}

// Step prints a cyan progress line for multi-step operations.
func Step(format string, a ...any) {
	cyan.Fprint(Stdout, withPrefix("→", fmt.Sprintf(format, a...)))
}

// Println prints a plain line.
func Println(a ...any) {
	fmt.Fprintln(Stdout, a...)
}

// Printf prints plain formatted output.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Category renders a score category coloured by severity.
func Category(c scoring.Category) string {
	switch c {
	case scoring.CategoryLow:
		return green.Sprint(c)
	case scoring.CategoryModerate:
		return yellow.Sprint(c)
	case scoring.CategoryHigh:
		return red.Sprint(c)
	default:
		return string(c)
	}
}

// Error prints a titled error with an explanation and suggestions to stderr,
// and returns an error carrying only the title for cobra to exit with.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(Stderr)
		for _, k := range keys {
			fmt.Fprintf(Stderr, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Stderr, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

func withPrefix(prefix, msg string) string {
	if strings.HasPrefix(msg, prefix) {
		return msg
	}
	return prefix + " " + msg
}
