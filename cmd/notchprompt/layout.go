package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// ============================================================================
// Content metrics
// ============================================================================
// The engine only needs the rendered height of one copy of the script. In a
// terminal one wrapped line is one row; rows are converted to points through a
// font-size dependent line height so speeds stay in points per second.
// ============================================================================

// lineHeightFor returns the height of one wrapped line in points.
func lineHeightFor(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	return fontSize * lineSpacing
}

// wrapScript normalizes the script and wraps it to cols display columns.
// Words are kept whole where possible; words longer than a line are broken.
func wrapScript(text string, cols int) []string {
	if cols < 1 {
		cols = 1
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	text = ansi.Strip(text)
	text = strings.TrimRight(text, "\n ")

	wrapped := ansi.Wrap(text, cols, "")
	lines := strings.Split(wrapped, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines
}

// measureContent returns the height of one copy of lines wrapped script lines.
func measureContent(lines int, fontSize float64) float64 {
	return math.Max(minContentHeight, float64(lines)*lineHeightFor(fontSize))
}

// viewportHeightFor converts terminal rows into points.
func viewportHeightFor(rows int, fontSize float64) float64 {
	if rows < 0 {
		rows = 0
	}
	return float64(rows) * lineHeightFor(fontSize)
}

// fitWidth truncates or pads s to exactly width display cells.
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}
