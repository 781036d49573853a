package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/krashnark/gw2gains/internal/model"
)

// ---------------------------------------------------------------------------
// Styles — Catppuccin Mocha themed
// ---------------------------------------------------------------------------

var (
	// Section titles
	titleStyle = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)

	// Header bar (spans full width)
	headerBarStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorMantle).
			Padding(0, 2)

	// App name in header
	headerAppStyle = lipgloss.NewStyle().
			Foreground(colorBrand).
			Bold(true)

	// Stage badge in header
	stageBadgeStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Background(colorSurface0).
			Bold(true).
			Padding(0, 1)

	// Key fingerprint in header
	keyHintStyle = lipgloss.NewStyle().
			Foreground(colorOverlay1).
			Background(colorMantle)

	// Status bar (above footer)
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorSubtext1).
			Background(colorSurface0).
			Padding(0, 2)

	// Footer bar
	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0).
			Background(colorMantle).
			Padding(0, 2)

	// Help key styling
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0)

	// Input line
	inputBoxStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Padding(0, 2)

	// Table styles
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSubtext0).
				Bold(true)

	gainStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	lossStyle = lipgloss.NewStyle().Foreground(colorError)

	cursorStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	// Scroll indicator
	scrollStyle = lipgloss.NewStyle().Foreground(colorOverlay1)

	// Summary labels and secondary text
	labelStyle = lipgloss.NewStyle().Foreground(colorSubtext0)
	mutedStyle = lipgloss.NewStyle().Foreground(colorOverlay1)

	// Coin denomination suffixes
	goldStyle   = lipgloss.NewStyle().Foreground(colorGold)
	silverStyle = lipgloss.NewStyle().Foreground(colorSilver)
	copperStyle = lipgloss.NewStyle().Foreground(colorCopper)
)

// ---------------------------------------------------------------------------
// Chrome rendering
// ---------------------------------------------------------------------------

func stageLabel(s model.State) string {
	switch s {
	case model.Started:
		return "no key"
	case model.KeySet:
		return "key set"
	case model.StartSnapshotSet:
		return "tracking"
	case model.EndSnapshotSet:
		return "snapshot closed"
	case model.ReportSet:
		return "report ready"
	}
	return "unknown"
}

// maskKey shows just enough of an API key to tell accounts apart.
func maskKey(key model.APIKey) string {
	if key == "" {
		return "no key"
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return "key …" + string(runes)
	}
	return "key …" + string(runes[len(runes)-4:])
}

func renderHeader(state model.State, apiKey model.APIKey, width int) string {
	name := headerAppStyle.Render(appName)
	badge := stageBadgeStyle.Render(stageLabel(state))
	hint := keyHintStyle.Render(maskKey(apiKey))
	content := name + "  " + badge + "  " + hint

	if width <= 0 {
		return headerBarStyle.Render(content)
	}
	return headerBarStyle.Width(width).Render(content)
}

func (a App) renderFooter(bindings []key.Binding) string {
	// Build help text where every character carries the footer background.
	bg := colorMantle
	keyStyle := helpKeyStyle.Background(bg)
	descStyle := helpDescStyle.Background(bg)
	space := lipgloss.NewStyle().Background(bg).Render(" ")
	sep := lipgloss.NewStyle().Background(bg).Render("  ")

	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		if help.Key == "" && help.Desc == "" {
			continue
		}
		parts = append(parts, keyStyle.Render(help.Key)+space+descStyle.Render(help.Desc))
	}
	content := strings.Join(parts, sep)

	if a.width == 0 {
		return footerStyle.Render(content)
	}
	return footerStyle.Width(a.width).Render(content)
}

func (a App) renderStatus() string {
	flat := strings.ReplaceAll(a.status, "\n", " ")
	style := statusBarStyle
	switch a.statusKind {
	case statusSuccess:
		style = style.Foreground(colorSuccess)
	case statusError:
		style = style.Foreground(colorError)
	case statusWorking:
		style = style.Foreground(colorSubtext0)
	}
	if a.width == 0 {
		return style.Render(flat)
	}
	return style.Width(a.width).Render(flat)
}

func (a App) placeWithFooter(body, statusLine, footer string) string {
	if a.height == 0 {
		return body + "\n\n" + statusLine + "\n" + footer
	}
	contentHeight := a.height - 2
	if contentHeight < 1 {
		contentHeight = 1
	}
	if lipgloss.Height(body) >= contentHeight {
		return body + "\n" + statusLine + "\n" + footer
	}
	main := lipgloss.Place(a.width, contentHeight, lipgloss.Left, lipgloss.Top, body)
	// Ensure every line is full-width to prevent ghosting from previous frames
	lines := splitLines(main)
	for i, line := range lines {
		lines[i] = padRight(line, a.width)
	}
	main = strings.Join(lines, "\n")
	return main + "\n" + statusLine + "\n" + footer
}

// ---------------------------------------------------------------------------
// Coin formatting
// ---------------------------------------------------------------------------

// formatCoins renders a coin amount in gold/silver/copper, omitting the
// leading denominations a small amount never reaches.
func formatCoins(v int64) string {
	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
		v = -v
	}
	gold, silver, copper := v/10000, (v/100)%100, v%100
	switch {
	case gold > 0:
		fmt.Fprintf(&b, "%dg %02ds %02dc", gold, silver, copper)
	case silver > 0:
		fmt.Fprintf(&b, "%ds %02dc", silver, copper)
	default:
		fmt.Fprintf(&b, "%dc", copper)
	}
	return b.String()
}

// signedCoins is formatCoins with an explicit plus on gains.
func signedCoins(v int64) string {
	if v > 0 {
		return "+" + formatCoins(v)
	}
	return formatCoins(v)
}

// styledCoins colors the denomination suffixes like the in-game wallet.
// Only for places that align with padLeft, never inside fmt widths.
func styledCoins(v int64) string {
	s := signedCoins(v)
	s = strings.ReplaceAll(s, "g ", goldStyle.Render("g")+" ")
	s = strings.ReplaceAll(s, "s ", silverStyle.Render("s")+" ")
	if strings.HasSuffix(s, "c") {
		s = strings.TrimSuffix(s, "c") + copperStyle.Render("c")
	}
	return s
}

// ---------------------------------------------------------------------------
// Data rendering
// ---------------------------------------------------------------------------

const (
	qtyColWidth      = 6
	unitColWidth     = 13
	subtotalColWidth = 15
)

func renderSummary(r model.Report, width int) string {
	duration := r.EndedAt.Sub(r.StartedAt).Round(time.Minute)
	period := fmt.Sprintf("%s → %s (%s)",
		r.StartedAt.Local().Format("Jan 2 15:04"),
		r.EndedAt.Local().Format("Jan 2 15:04"),
		duration)

	rows := []struct {
		label string
		value string
	}{
		{"Period", mutedStyle.Render(period)},
		{"Items", padLeft(styledCoins(r.ItemGain()), subtotalColWidth)},
		{"Coins", padLeft(styledCoins(r.CoinGain()), subtotalColWidth)},
		{"Total", padLeft(totalStyleFor(r.TotalGain()).Render(signedCoins(r.TotalGain())), subtotalColWidth)},
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		line := labelStyle.Render(fmt.Sprintf("%-8s", row.label)) + " " + row.value
		lines = append(lines, padRight(line, width))
	}
	return strings.Join(lines, "\n")
}

func totalStyleFor(v int64) lipgloss.Style {
	if v < 0 {
		return lossStyle.Bold(true)
	}
	return gainStyle.Bold(true)
}

func summaryLineCount() int {
	return 4
}

func renderReportTable(rows []reportRow, cursor, topIndex, visible, width int) string {
	cursorWidth := 2
	nameWidth := width - cursorWidth - qtyColWidth - unitColWidth - subtotalColWidth - 8
	if nameWidth < 5 {
		nameWidth = 5
	}

	header := fmt.Sprintf("  %-*s  %*s  %*s  %*s",
		nameWidth, "Item", qtyColWidth, "Qty", unitColWidth, "Unit", subtotalColWidth, "Subtotal")
	lines := []string{tableHeaderStyle.Render(header)}

	end := topIndex + visible
	if end > len(rows) {
		end = len(rows)
	}
	for i := topIndex; i < end; i++ {
		row := rows[i]
		prefix := "  "
		if i == cursor {
			prefix = cursorStyle.Render("> ")
		}
		nameField := padRight(truncate(row.name, nameWidth), nameWidth)
		qtyField := fmt.Sprintf("%+*d", qtyColWidth, row.count)
		unitField := fmt.Sprintf("%*s", unitColWidth, formatCoins(row.unit))
		subtotalField := fmt.Sprintf("%*s", subtotalColWidth, signedCoins(row.subtotal))
		if row.subtotal > 0 {
			qtyField = gainStyle.Render(qtyField)
			subtotalField = gainStyle.Render(subtotalField)
		} else if row.subtotal < 0 {
			qtyField = lossStyle.Render(qtyField)
			subtotalField = lossStyle.Render(subtotalField)
		}
		lines = append(lines, prefix+nameField+"  "+qtyField+"  "+unitField+"  "+subtotalField)
	}

	// Scroll indicator
	total := len(rows)
	if total > 0 && visible > 0 {
		start := topIndex + 1
		endIdx := topIndex + visible
		if endIdx > total {
			endIdx = total
		}
		indicator := scrollStyle.Render(fmt.Sprintf("── showing %d-%d of %d ──", start, endIdx, total))
		lines = append(lines, indicator)
	}

	return strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// String helpers
// ---------------------------------------------------------------------------

func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}

func padRight(s string, width int) string {
	if width <= 0 {
		return s
	}
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func padLeft(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}
