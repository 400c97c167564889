// Package report renders snapshots and comparisons as markdown suitable
// for a pull-request comment.
package report

import (
	"fmt"
	"strings"

	"github.com/schaermu/bundlewatchd/internal/snapshot"
)

// Marker is embedded verbatim in every rendered report. The publisher
// locates a previously posted comment by substring-searching for it, so it
// must never change between renders.
const Marker = "<!-- bundlewatchd:report -->"

const title = "## 📦 Bundle size report"

// Glyphs for the three delta directions.
const (
	glyphIncrease  = "🔺"
	glyphDecrease  = "🔻"
	glyphUnchanged = "➖"
)

// Glyph returns the fixed marker for a delta direction.
func Glyph(d snapshot.Direction) string {
	switch d {
	case snapshot.Increase:
		return glyphIncrease
	case snapshot.Decrease:
		return glyphDecrease
	default:
		return glyphUnchanged
	}
}

var units = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders a byte count in the largest base-1024 unit whose
// displayed magnitude is at least 1, with one fractional digit. Zero is
// the literal "0 B"; negative values keep their minus through the same
// unit selection.
func FormatBytes(n int64) string {
	if n == 0 {
		return "0 B"
	}

	neg := ""
	v := float64(n)
	if v < 0 {
		neg = "-"
		v = -v
	}

	unit := 0
	for v >= 1024 && unit < len(units)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%s%.1f %s", neg, v, units[unit])
}

// FormatDelta renders a signed byte delta. Positive deltas get an explicit
// leading "+"; zero and negative deltas render as FormatBytes does.
func FormatDelta(n int64) string {
	if n > 0 {
		return "+" + FormatBytes(n)
	}
	return FormatBytes(n)
}

// Render formats a comparison result. Current-only mode produces a
// route/size/files table; comparison mode adds base, delta and a
// direction glyph per route plus a grand-total row.
func Render(cmp *snapshot.Comparison) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n\n")

	if cmp.CurrentOnly() {
		renderCurrentOnly(&b, cmp.Current)
	} else {
		renderComparison(&b, cmp)
	}

	return b.String()
}

func renderCurrentOnly(b *strings.Builder, snap *snapshot.Snapshot) {
	b.WriteString("No base snapshot was available; sizes are reported without comparison.\n\n")
	b.WriteString("| Route | Size | Files |\n")
	b.WriteString("| --- | ---: | ---: |\n")
	for _, route := range snap.OrderedRoutes() {
		stat := snap.Routes[route]
		fmt.Fprintf(b, "| `%s` | %s | %d |\n", route, FormatBytes(stat.Size), stat.Files)
	}
	fmt.Fprintf(b, "\n**Total bundle size:** %s\n", FormatBytes(snap.TotalSize))
}

func renderComparison(b *strings.Builder, cmp *snapshot.Comparison) {
	b.WriteString("| Route | Size | Base | Delta | |\n")
	b.WriteString("| --- | ---: | ---: | ---: | :---: |\n")
	for _, e := range cmp.Entries {
		fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n",
			e.Route,
			FormatBytes(e.Current.Size),
			FormatBytes(e.Base.Size),
			FormatDelta(e.Delta),
			Glyph(e.Direction))
	}
	fmt.Fprintf(b, "| **Total** | %s | %s | %s | %s |\n",
		FormatBytes(cmp.Current.TotalSize),
		FormatBytes(cmp.Base.TotalSize),
		FormatDelta(cmp.TotalDelta),
		Glyph(cmp.TotalDirection))
}
