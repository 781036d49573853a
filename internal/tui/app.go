// Package tui is the terminal frontend. The App is a plain Bubble Tea
// model; all tracking work happens in controller tasks that talk back
// through the program's message queue, so Update stays non-blocking.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/krashnark/gw2gains/internal/guest"
	"github.com/krashnark/gw2gains/internal/model"
)

const appName = "GW2 Gains"

// Input modes
const (
	modeNormal = iota
	modeKey
	modeFilter
)

// reportRow is one line of the gains table.
type reportRow struct {
	id       model.ItemID
	name     string
	count    int64
	unit     int64
	subtotal int64
	iconPath string
}

// Controller is the surface the app drives. Intents return immediately;
// outcomes come back as messages.
type Controller interface {
	Attach(host guest.Host) error
	UseKey(key model.APIKey)
	CaptureStart()
	ComputeGains()
	Shutdown()
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type App struct {
	ctrl Controller
	host *Host

	keys        keyMap
	inputKeys   inputKeyMap
	keyInput    textinput.Model
	filterInput textinput.Model

	mode     int
	state    model.State
	apiKey   model.APIKey
	report   *model.Report
	rows     []reportRow
	cursor   int
	topIndex int

	status     string
	statusKind statusKind
	busy       bool
	attached   bool
	quitting   bool
	runErr     error
	width      int
	height     int
}

func New(ctrl Controller, host *Host) App {
	keyInput := textinput.New()
	keyInput.Placeholder = "paste account API key"
	keyInput.Prompt = "key> "
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'

	filterInput := textinput.New()
	filterInput.Placeholder = "item name"
	filterInput.Prompt = "/ "

	return App{
		ctrl:        ctrl,
		host:        host,
		keys:        newKeyMap(),
		inputKeys:   inputKeyMap{keyMap: newKeyMap()},
		keyInput:    keyInput,
		filterInput: filterInput,
		status:      "Starting...",
		statusKind:  statusWorking,
	}
}

// RunErr reports the guest run outcome once the program has quit.
func (a App) RunErr() error { return a.runErr }

// ---------------------------------------------------------------------------
// Bubble Tea interface: Init / Update / View
// ---------------------------------------------------------------------------

func (a App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.attachCmd())
}

// attachCmd runs the attach handshake off the loop: the scheduler's
// handshake callback travels the message queue, which only pumps once
// the program is running.
func (a App) attachCmd() tea.Cmd {
	return func() tea.Msg {
		return attachDoneMsg{err: a.ctrl.Attach(a.host)}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case hostCallMsg:
		msg.fn()
		return a, nil
	case guestDoneMsg:
		a.runErr = msg.err
		return a, tea.Quit
	case attachDoneMsg:
		if msg.err != nil {
			a.status = "Background runtime failed to start: " + msg.err.Error()
			a.statusKind = statusError
			return a, nil
		}
		a.attached = true
		return a, nil
	case statusMsg:
		a.status, a.statusKind = msg.text, msg.kind
		if msg.kind == statusSuccess || msg.kind == statusError {
			a.busy = false
		}
		return a, nil
	case stateChangedMsg:
		a.state, a.apiKey = msg.state, msg.key
		if msg.state != model.ReportSet {
			// a fresh key or snapshot invalidates any report on screen
			a.report = nil
			a.rows = nil
			a.cursor, a.topIndex = 0, 0
		}
		return a, nil
	case reportReadyMsg:
		r := msg.report
		a.report = &r
		a.rows = buildReportRows(r)
		a.cursor, a.topIndex = 0, 0
		return a, nil
	case inputEnabledMsg:
		a.busy = false
		return a, nil
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		return a.clampCursor(), nil
	case tea.KeyMsg:
		switch a.mode {
		case modeKey:
			return a.updateKeyInput(msg)
		case modeFilter:
			return a.updateFilterInput(msg)
		}
		return a.updateMain(msg)
	}

	var cmd tea.Cmd
	switch a.mode {
	case modeKey:
		a.keyInput, cmd = a.keyInput.Update(msg)
	case modeFilter:
		a.filterInput, cmd = a.filterInput.Update(msg)
	}
	return a, cmd
}

func (a App) View() string {
	header := renderHeader(a.state, a.apiKey, a.width)
	statusLine := a.renderStatus()
	footer := a.renderFooter(a.footerBindings())

	var body string
	if a.report != nil {
		body = a.reportView()
	} else {
		body = a.sessionView()
	}

	main := header + "\n\n" + body
	if input := a.renderInput(); input != "" {
		main += "\n\n" + input
	}
	return a.placeWithFooter(main, statusLine, footer)
}

// ---------------------------------------------------------------------------
// Key handling
// ---------------------------------------------------------------------------

func (a App) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) {
		return a.quit()
	}
	if a.quitting {
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Key):
		if a.busy {
			return a.hint("Still working on the previous action...")
		}
		a.mode = modeKey
		a.keyInput.Reset()
		return a, a.keyInput.Focus()

	case key.Matches(msg, a.keys.Start):
		return a.fireIntent(a.ctrl.CaptureStart)

	case key.Matches(msg, a.keys.Gains):
		return a.fireIntent(a.ctrl.ComputeGains)

	case key.Matches(msg, a.keys.Filter):
		if len(a.rows) == 0 {
			return a, nil
		}
		a.mode = modeFilter
		return a, a.filterInput.Focus()

	case key.Matches(msg, a.keys.Cancel):
		if a.filterInput.Value() != "" {
			a.filterInput.Reset()
			a.cursor, a.topIndex = 0, 0
		}
		return a, nil

	case key.Matches(msg, a.keys.UpDown):
		switch msg.String() {
		case "up":
			return a.moveCursor(-1), nil
		case "down":
			return a.moveCursor(1), nil
		}
	}
	return a, nil
}

func (a App) updateKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a.quit()
	case "esc":
		a.mode = modeNormal
		a.keyInput.Blur()
		return a, nil
	case "enter":
		value := strings.TrimSpace(a.keyInput.Value())
		a.mode = modeNormal
		a.keyInput.Blur()
		if value == "" {
			return a, nil
		}
		a.busy = true
		a.ctrl.UseKey(model.APIKey(value))
		return a, nil
	}
	var cmd tea.Cmd
	a.keyInput, cmd = a.keyInput.Update(msg)
	return a, cmd
}

func (a App) updateFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a.quit()
	case "esc":
		a.mode = modeNormal
		a.filterInput.Reset()
		a.filterInput.Blur()
		a.cursor, a.topIndex = 0, 0
		return a, nil
	case "enter":
		a.mode = modeNormal
		a.filterInput.Blur()
		return a, nil
	}
	var cmd tea.Cmd
	a.filterInput, cmd = a.filterInput.Update(msg)
	a.cursor, a.topIndex = 0, 0
	return a, cmd
}

// quit asks the controller to wind the guest run down; the program
// exits when the drained run reports back. Before attach there is
// nothing to drain.
func (a App) quit() (tea.Model, tea.Cmd) {
	if a.quitting {
		return a, nil
	}
	if !a.attached {
		return a, tea.Quit
	}
	a.quitting = true
	a.status, a.statusKind = "Shutting down...", statusWorking
	a.ctrl.Shutdown()
	return a, nil
}

func (a App) fireIntent(intent func()) (tea.Model, tea.Cmd) {
	if a.busy {
		return a.hint("Still working on the previous action...")
	}
	if !a.attached {
		return a.hint("Still starting up, try again in a moment.")
	}
	a.busy = true
	intent()
	return a, nil
}

func (a App) hint(text string) (tea.Model, tea.Cmd) {
	a.status, a.statusKind = text, statusInfo
	return a, nil
}

// ---------------------------------------------------------------------------
// Cursor and rows
// ---------------------------------------------------------------------------

func (a App) filteredRows() []reportRow {
	return filterRows(a.rows, a.filterInput.Value())
}

func (a App) moveCursor(delta int) App {
	rows := a.filteredRows()
	if len(rows) == 0 {
		a.cursor, a.topIndex = 0, 0
		return a
	}
	a.cursor += delta
	if a.cursor < 0 {
		a.cursor = 0
	}
	if a.cursor > len(rows)-1 {
		a.cursor = len(rows) - 1
	}
	return a.clampCursor()
}

func (a App) clampCursor() App {
	visible := a.visibleRows()
	if a.cursor < a.topIndex {
		a.topIndex = a.cursor
	}
	if a.cursor >= a.topIndex+visible {
		a.topIndex = a.cursor - visible + 1
	}
	if a.topIndex < 0 {
		a.topIndex = 0
	}
	return a
}

// visibleRows is how many table rows fit under the chrome: header,
// titles, summary block, table header, scroll line, status and footer.
func (a App) visibleRows() int {
	if a.height == 0 {
		return 10
	}
	v := a.height - summaryLineCount() - 8
	if v < 3 {
		v = 3
	}
	return v
}

func buildReportRows(r model.Report) []reportRow {
	ids := r.InventoryDelta.IDs()
	rows := make([]reportRow, 0, len(ids))
	for _, id := range ids {
		d := r.ItemDetails[id]
		count := r.InventoryDelta.Get(id)
		unit := d.Value()
		rows = append(rows, reportRow{
			id:       id,
			name:     d.Name,
			count:    count,
			unit:     unit,
			subtotal: count * unit,
			iconPath: d.IconPath,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].subtotal != rows[j].subtotal {
			return rows[i].subtotal > rows[j].subtotal
		}
		return rows[i].name < rows[j].name
	})
	return rows
}

// ---------------------------------------------------------------------------
// View composition
// ---------------------------------------------------------------------------

func (a App) footerBindings() []key.Binding {
	if a.mode != modeNormal {
		return a.inputKeys.ShortHelp()
	}
	return a.keys.ShortHelp()
}

func (a App) renderInput() string {
	switch a.mode {
	case modeKey:
		return inputBoxStyle.Render(a.keyInput.View())
	case modeFilter:
		return inputBoxStyle.Render(a.filterInput.View())
	}
	return ""
}

func (a App) sessionView() string {
	steps := []struct {
		label string
		done  bool
	}{
		{"API key validated", a.state >= model.KeySet},
		{"Start snapshot captured", a.state >= model.StartSnapshotSet},
		{"Gains computed", a.state >= model.ReportSet},
	}
	lines := []string{titleStyle.Render("Session")}
	for _, step := range steps {
		mark, label := mutedStyle.Render("·"), mutedStyle.Render(step.label)
		if step.done {
			mark, label = gainStyle.Render("✓"), step.label
		}
		lines = append(lines, "  "+mark+" "+label)
	}
	return strings.Join(lines, "\n")
}

func (a App) reportView() string {
	rows := a.filteredRows()
	width := a.contentWidth()
	parts := []string{
		titleStyle.Render("Gains"),
		renderSummary(*a.report, width),
		"",
		renderReportTable(rows, a.cursor, a.topIndex, a.visibleRows(), width),
	}
	if q := strings.TrimSpace(a.filterInput.Value()); q != "" && a.mode != modeFilter {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("filter: %q (esc clears)", q)))
	}
	return strings.Join(parts, "\n")
}

func (a App) contentWidth() int {
	if a.width == 0 {
		return 80
	}
	return a.width
}
