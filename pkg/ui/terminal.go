package ui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Banner is printed at the top of a crawl
const Banner = `
  ┌─┐┌─┐┌─┐┌┬┐┬┌─┐┌┬┐┬
  │││├┤  │ ││││├─┤ ││
  ┴ ┴└─┘─┴┘┴┴ ┴─┴┘┴─┘
`

var (
	out     io.Writer = os.Stdout
	noColor atomic.Bool
	quiet   atomic.Bool
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects all print helpers, mainly for tests
func SetOutput(w io.Writer) {
	out = w
}

// SetNoColor disables ANSI colors
func SetNoColor(v bool) {
	noColor.Store(v)
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(v bool) {
	quiet.Store(v)
}

// PrintBanner prints the banner with color
func PrintBanner() {
	if quiet.Load() {
		return
	}
	fmt.Fprint(out, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintln(out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintf(out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if quiet.Load() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintln(out, Magenta(msg))
}
