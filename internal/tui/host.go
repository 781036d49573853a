package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/krashnark/gw2gains/internal/model"
)

// ---------------------------------------------------------------------------
// Bubble Tea messages
// ---------------------------------------------------------------------------

// hostCallMsg carries a scheduled callback onto the program loop. The
// callback runs inside Update and must not synchronously feed the
// program's own queue.
type hostCallMsg struct {
	fn func()
}

// guestDoneMsg reports the end of the guest run; the app quits on it.
type guestDoneMsg struct {
	err error
}

type attachDoneMsg struct {
	err error
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusWorking
	statusSuccess
	statusError
)

type statusMsg struct {
	kind statusKind
	text string
}

type stateChangedMsg struct {
	state model.State
	key   model.APIKey
}

type reportReadyMsg struct {
	report model.Report
}

type inputEnabledMsg struct{}

// ---------------------------------------------------------------------------
// Host adapter
// ---------------------------------------------------------------------------

// Host adapts a Bubble Tea program into the event loop the scheduler
// runs inside. Scheduled callbacks travel the program's message queue
// and execute in Update, which is the loop goroutine. SetProgram must
// run before the controller attaches.
type Host struct {
	mu   sync.Mutex
	prog *tea.Program
	log  zerolog.Logger
}

func NewHost(log zerolog.Logger) *Host {
	return &Host{log: log}
}

// SetProgram wires the freshly constructed program in. Call it between
// tea.NewProgram and Run.
func (h *Host) SetProgram(p *tea.Program) {
	h.mu.Lock()
	h.prog = p
	h.mu.Unlock()
}

func (h *Host) program() *tea.Program {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prog
}

func (h *Host) Schedule(fn func()) {
	h.program().Send(hostCallMsg{fn: fn})
}

// ScheduleNow has no cheaper same-goroutine path in a message loop and
// aliases Schedule.
func (h *Host) ScheduleNow(fn func()) {
	h.Schedule(fn)
}

func (h *Host) Finished(err error) {
	h.log.Debug().Err(err).Msg("guest run reported finished")
	h.program().Send(guestDoneMsg{err: err})
}

func (h *Host) send(msg tea.Msg) {
	h.program().Send(msg)
}

// ---------------------------------------------------------------------------
// View notifications
// ---------------------------------------------------------------------------

// Notifier turns controller notifications into program messages. All
// methods block at most until the loop picks the message up; they are
// only ever called from task goroutines.
type Notifier struct {
	host *Host
}

func NewNotifier(h *Host) Notifier {
	return Notifier{host: h}
}

func (n Notifier) ShowWorking(text string) {
	n.host.send(statusMsg{kind: statusWorking, text: text})
}

func (n Notifier) ShowSuccess(text string) {
	n.host.send(statusMsg{kind: statusSuccess, text: text})
}

func (n Notifier) ShowError(text string) {
	n.host.send(statusMsg{kind: statusError, text: text})
}

func (n Notifier) StateChanged(state model.State, key model.APIKey) {
	n.host.send(stateChangedMsg{state: state, key: key})
}

func (n Notifier) ShowReport(r model.Report) {
	n.host.send(reportReadyMsg{report: r})
}

func (n Notifier) EnableKeyInput() {
	n.host.send(inputEnabledMsg{})
}
