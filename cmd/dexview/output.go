package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/session"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

const emptyMessage = "No items found matching your criteria"

// badgeColors maps each type to a 256-color foreground. Anything else gets
// badgeFallback.
var badgeColors = map[string]string{
	"fire":     ansi256(203),
	"water":    ansi256(69),
	"grass":    ansi256(77),
	"electric": ansi256(220),
	"psychic":  ansi256(135),
	"ice":      ansi256(44),
	"dragon":   ansi256(99),
	"dark":     ansi256(238),
	"fairy":    ansi256(205),
	"normal":   ansi256(244),
	"fighting": ansi256(124),
	"flying":   ansi256(111),
	"poison":   ansi256(91),
	"ground":   ansi256(136),
	"rock":     ansi256(94),
	"bug":      ansi256(28),
	"ghost":    ansi256(54),
	"steel":    ansi256(248),
}

var badgeFallback = ansi256(241)

func ansi256(n int) string {
	return fmt.Sprintf("\033[38;5;%dm", n)
}

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func badge(category string) string {
	color, ok := badgeColors[category]
	if !ok {
		color = badgeFallback
	}
	return colorize(color, catalog.Capitalize(category))
}

func badges(categories []string) string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = badge(c)
	}
	return strings.Join(out, " ")
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printItems renders the visible list, one item per line.
func printItems(w io.Writer, items []catalog.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, emptyMessage)
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %-14s %s\n", colorize(colorGray, it.Number()), it.DisplayName(), badges(it.Categories))
	}
}

func printItem(w io.Writer, it catalog.Item) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, it.DisplayName()), colorize(colorGray, it.Number()))
	printStatus(w, "Types", "%s", badges(it.Categories))
	printStatus(w, "Height", "%.1f m", it.HeightMeters())
	printStatus(w, "Weight", "%.1f kg", it.WeightKilograms())
	abilities := make([]string, len(it.Abilities))
	for i, a := range it.Abilities {
		abilities[i] = catalog.Capitalize(a)
	}
	if len(abilities) == 0 {
		abilities = []string{"-"}
	}
	printStatus(w, "Abilities", "%s", strings.Join(abilities, ", "))
	if it.ImageRef != "" {
		printStatus(w, "Image", "%s", it.ImageRef)
	}
}

// printNotReady explains a Loading or Failed snapshot. It reports whether
// the snapshot was Ready.
func printNotReady(w io.Writer, snap session.Snapshot) bool {
	switch snap.Status {
	case catalog.StatusReady:
		return true
	case catalog.StatusFailed:
		fmt.Fprintln(w, colorize(colorRed, "Error: "+snap.Error))
		if snap.Cause != "" {
			fmt.Fprintln(w, colorize(colorGray, snap.Cause))
		}
		fmt.Fprintln(w, `Run "dexview reload" to try again.`)
	default:
		fmt.Fprintln(w, "Loading...")
	}
	return false
}
