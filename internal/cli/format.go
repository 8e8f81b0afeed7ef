package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	faint  = color.New(color.Faint)
)

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// humanDuration renders seconds as "2h 05m", "12m 30s" or "45s".
func humanDuration(secs int64) string {
	switch {
	case secs >= 3600:
		return fmt.Sprintf("%dh %02dm", secs/3600, (secs%3600)/60)
	case secs >= 60:
		return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// bar draws a proportional bar of at most width cells.
func bar(value, total int64, width int) string {
	if total <= 0 || value <= 0 {
		return ""
	}
	n := int(value * int64(width) / total)
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func heading(w io.Writer, format string, args ...any) {
	cyan.Fprintf(w, format+"\n", args...)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
