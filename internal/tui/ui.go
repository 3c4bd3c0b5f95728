// Package tui renders the supervised children and their output in a
// tcell/tview dashboard. The UI implements the same sink interface as the
// plain console, so it can replace it when running interactively.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/supervisor"
)

const (
	tableTitle       = "Children"
	logsTitle        = "Output"
	filterPageName   = "filter"
	defaultRetention = 1000
	refreshInterval  = 100 * time.Millisecond
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLines sets how many output lines are retained.
func WithMaxLines(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLines = n
		}
	}
}

// WithQuitFunc sets the callback invoked when the user presses q or Ctrl+C.
// The UI keeps running until Stop is called so shutdown output stays
// visible.
func WithQuitFunc(fn func()) Option {
	return func(u *UI) {
		u.onQuit = fn
	}
}

// UI coordinates the interactive dashboard backed by tview.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	table  *tview.Table
	logs   *tview.TextView
	events chan supervisor.Event

	mu         sync.Mutex
	children   map[string]*childState
	order      []string
	lines      []outputLine
	phase      string
	filter     string
	filterExpr *regexp.Regexp
	maxLines   int

	logsFocused bool
	dirty       atomic.Bool
	quitOnce    sync.Once
	onQuit      func()

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type outputLine struct {
	raw    string
	tagged string
}

type childState struct {
	label     string
	pid       int
	state     supervisor.EventType
	exitCode  *int
	firstSeen time.Time
	message   string
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 0).SetSelectable(false, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	logs.SetBorder(true).SetTitle(logsTitle)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, false).
		AddItem(logs, 0, 3, true)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:      app,
		pages:    pages,
		table:    table,
		logs:     logs,
		events:   make(chan supervisor.Event, 256),
		children: make(map[string]*childState),
		maxLines: defaultRetention,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where supervisor events should be delivered.
func (u *UI) EventSink() chan<- supervisor.Event {
	return u.events
}

// CloseEvents releases the event channel.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Line records a child output line.
func (u *UI) Line(line console.Line) {
	tagged := fmt.Sprintf("[%s]%s[-] %s", tviewColor(line.Tag.Color), tview.Escape(line.Tag.Prefix()), tview.Escape(line.Text))
	u.appendLine(line.Tag.Prefix()+" "+line.Text, tagged)
}

// Notice records a workit message.
func (u *UI) Notice(n console.Notice) {
	var text string
	switch n.Kind {
	case console.NoticeAccess:
		text = fmt.Sprintf("[::b]%s:[::-] %s", tview.Escape(n.Label), tview.Escape(n.Text))
	case console.NoticeSuccess:
		text = "[green::b]" + tview.Escape(n.Text) + "[-::-]"
	case console.NoticeWarning:
		text = "[yellow]" + tview.Escape(n.Text) + "[-]"
	case console.NoticeError:
		text = "[red]" + tview.Escape(n.Text) + "[-]"
	case console.NoticeMuted:
		text = "[::d]" + tview.Escape(n.Text) + "[::-]"
	case console.NoticeInfo:
		text = "[::b]" + tview.Escape(n.Text) + "[::-]"
	default:
		text = tview.Escape(n.Text)
	}
	raw := n.Text
	if n.Kind == console.NoticeAccess {
		raw = n.Label + ": " + n.Text
	}
	if n.Leading {
		u.appendLine("", "")
	}
	u.appendLine(raw, text)
}

func (u *UI) appendLine(raw, tagged string) {
	u.mu.Lock()
	u.lines = append(u.lines, outputLine{raw: raw, tagged: tagged})
	if len(u.lines) > u.maxLines {
		trim := len(u.lines) - u.maxLines
		u.lines = append([]outputLine(nil), u.lines[trim:]...)
	}
	u.mu.Unlock()
	u.dirty.Store(true)
}

// Run starts the tview application and processes incoming events until Stop
// is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	events := u.events
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			u.applyEvent(evt)
		case <-ticker.C:
			if u.dirty.Swap(false) {
				u.app.QueueUpdateDraw(u.redraw)
			}
		}
	}
}

func (u *UI) redraw() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refreshTableLocked()
	u.renderLogsLocked()
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if u.overlayFocused() {
		return event
	}
	switch event.Key() {
	case tcell.KeyCtrlC:
		u.quit()
		return nil
	case tcell.KeyTab:
		u.toggleFocus()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			u.quit()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		}
	}
	return event
}

func (u *UI) overlayFocused() bool {
	focus := u.app.GetFocus()
	return focus != nil && focus != u.table && focus != u.logs
}

func (u *UI) quit() {
	u.quitOnce.Do(func() {
		u.mu.Lock()
		u.phase = string(supervisor.EventTypeShuttingDown)
		u.mu.Unlock()
		u.dirty.Store(true)
		if u.onQuit != nil {
			go u.onQuit()
		} else {
			go u.Stop()
		}
	})
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) showFilterPrompt() {
	u.mu.Lock()
	current := u.filter
	u.mu.Unlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		})

	form.SetBorder(true).SetTitle("Filter Output")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		u.mu.Lock()
		u.filter = ""
		u.filterExpr = nil
		u.mu.Unlock()
		u.dirty.Store(true)
		return
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
		return
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.mu.Unlock()
	u.dirty.Store(true)
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

func (u *UI) applyEvent(evt supervisor.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	u.mu.Lock()
	defer u.dirty.Store(true)
	defer u.mu.Unlock()

	if evt.Child == "" {
		switch evt.Type {
		case supervisor.EventTypeReady, supervisor.EventTypeShuttingDown, supervisor.EventTypeStopped:
			u.phase = string(evt.Type)
		}
		return
	}

	state := u.children[evt.Child]
	if state == nil {
		state = &childState{label: evt.Child, firstSeen: evt.Timestamp}
		u.children[evt.Child] = state
		u.order = append(u.order, evt.Child)
	}
	state.state = evt.Type
	if evt.PID != 0 {
		state.pid = evt.PID
	}
	switch evt.Type {
	case supervisor.EventTypeExited, supervisor.EventTypeKilled:
		code := evt.Code
		state.exitCode = &code
	}
	state.message = formatEventMessage(evt)
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"CHILD", "PID", "STATE", "EXIT", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	if u.phase != "" {
		u.table.SetTitle(fmt.Sprintf("%s (%s)", tableTitle, formatState(u.phase)))
	} else {
		u.table.SetTitle(tableTitle)
	}

	for row, label := range u.order {
		state := u.children[label]
		pid := "-"
		if state.pid > 0 {
			pid = fmt.Sprintf("%d", state.pid)
		}
		exit := "-"
		if state.exitCode != nil {
			exit = fmt.Sprintf("%d", *state.exitCode)
		}
		age := time.Since(state.firstSeen).Truncate(time.Second).String()
		message := state.message
		if len(message) > 80 {
			message = message[:77] + "..."
		}

		values := []string{label, pid, formatState(string(state.state)), exit, age, message}
		for col, value := range values {
			u.table.SetCell(row+1, col, tview.NewTableCell(value))
		}
	}
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	if u.filter != "" {
		u.logs.SetTitle(fmt.Sprintf("%s /%s/", logsTitle, u.filter))
	} else {
		u.logs.SetTitle(logsTitle)
	}
	for _, line := range u.visibleLinesLocked() {
		fmt.Fprintln(u.logs, line.tagged)
	}
	u.logs.ScrollToEnd()
}

func (u *UI) visibleLinesLocked() []outputLine {
	if u.filterExpr == nil {
		return u.lines
	}
	out := make([]outputLine, 0, len(u.lines))
	for _, line := range u.lines {
		if u.filterExpr.MatchString(line.raw) {
			out = append(out, line)
		}
	}
	return out
}

func formatEventMessage(evt supervisor.Event) string {
	switch {
	case evt.Message != "" && evt.Err != nil:
		return fmt.Sprintf("%s: %v", evt.Message, evt.Err)
	case evt.Err != nil:
		return evt.Err.Error()
	default:
		return evt.Message
	}
}

func formatState(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

// tviewColor maps the console's ANSI palette to tview color tags.
func tviewColor(c lipgloss.Color) string {
	switch string(c) {
	case "1":
		return "red"
	case "2":
		return "green"
	case "3":
		return "yellow"
	case "4":
		return "blue"
	case "5":
		return "fuchsia"
	case "6":
		return "aqua"
	default:
		return "white"
	}
}
