// Package tui is the Bubble Tea dashboard. It renders store snapshots and
// turns key presses into controller commands; it holds no domain state of
// its own beyond cursors and the lab prompt.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/state"
)

const sidebarWidth = 30

// --- Tea messages ---

// stateChangedMsg means the store moved; the App re-reads the snapshot.
type stateChangedMsg struct{}

// commandDoneMsg reports a finished controller call. The outcome is
// already in the banner.
type commandDoneMsg struct {
	name string
	err  error
}

// App is the dashboard model.
type App struct {
	ctx     context.Context
	ctrl    *dashboard.Controller
	changes <-chan struct{}

	snap   state.State
	width  int
	height int

	body    viewport.Model
	prompt  textinput.Model
	spinner spinner.Model
	help    help.Model

	cursor map[state.Tab]int
	inFlight int

	theme Theme
	keys  KeyMap
}

// NewApp builds the model. changes is signalled whenever the store moves;
// Run wires it to a store subscription.
func NewApp(ctx context.Context, ctrl *dashboard.Controller, changes <-chan struct{}, theme Theme) App {
	ti := textinput.New()
	ti.Placeholder = "ask the brain, or draft: <order details>"
	ti.CharLimit = 2000

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return App{
		ctx:     ctx,
		ctrl:    ctrl,
		changes: changes,
		snap:    ctrl.Snapshot(),
		body:    viewport.New(80, 20),
		prompt:  ti,
		spinner: sp,
		help:    help.New(),
		cursor:  map[state.Tab]int{},
		theme:   theme,
		keys:    DefaultKeyMap(),
	}
}

// Run starts the dashboard and blocks until the operator quits or ctx ends.
func Run(ctx context.Context, ctrl *dashboard.Controller, theme Theme) error {
	changes := make(chan struct{}, 1)
	unsubscribe := ctrl.Store().Subscribe(func(state.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	p := tea.NewProgram(NewApp(ctx, ctrl, changes, theme), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.waitForChange(),
		a.spinner.Tick,
		a.run("refresh", a.ctrl.Refresh),
	)
}

func (a App) waitForChange() tea.Cmd {
	if a.changes == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-a.changes:
			return stateChangedMsg{}
		case <-a.ctx.Done():
			return nil
		}
	}
}

// run executes a controller call off the UI goroutine.
func (a App) run(name string, fn func(context.Context) error) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		return commandDoneMsg{name: name, err: fn(ctx)}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.relayout()
		return a, nil

	case stateChangedMsg:
		a.snap = a.ctrl.Snapshot()
		a.refreshBody()
		return a, a.waitForChange()

	case commandDoneMsg:
		if a.inFlight > 0 {
			a.inFlight--
		}
		a.snap = a.ctrl.Snapshot()
		a.refreshBody()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if a.prompt.Focused() {
			return a.updatePrompt(msg)
		}
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Cancel):
		a.prompt.Blur()
		return a, nil
	case key.Matches(msg, a.keys.Select):
		text := strings.TrimSpace(a.prompt.Value())
		a.prompt.SetValue("")
		a.prompt.Blur()
		return a.dispatch(a.labCommand(text))
	}
	var cmd tea.Cmd
	a.prompt, cmd = a.prompt.Update(msg)
	return a, cmd
}

// labCommand routes the prompt: "draft: ..." goes to the composer for the
// selected vendor, anything else to the brain test.
func (a App) labCommand(text string) (string, func(context.Context) error) {
	if brief, ok := strings.CutPrefix(text, "draft:"); ok {
		vendor := a.snap.SelectedVendor
		return "draft", func(ctx context.Context) error {
			_, err := a.ctrl.DraftEmail(ctx, vendor, strings.TrimSpace(brief))
			return err
		}
	}
	return "brain", func(ctx context.Context) error {
		_, err := a.ctrl.TestBrain(ctx, text)
		return err
	}
}

func (a App) dispatch(name string, fn func(context.Context) error) (tea.Model, tea.Cmd) {
	a.inFlight++
	return a, a.run(name, fn)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := a.keys
	tab := a.snap.ActiveTab

	switch {
	case key.Matches(msg, k.Quit):
		return a, tea.Quit
	case key.Matches(msg, k.NextTab):
		return a.dispatch("tab", a.selectTab(1))
	case key.Matches(msg, k.PrevTab):
		return a.dispatch("tab", a.selectTab(-1))
	case key.Matches(msg, k.Refresh):
		return a.dispatch("refresh", a.ctrl.Refresh)
	case key.Matches(msg, k.Sequence):
		return a.dispatch("sequence", a.ctrl.ExecuteSequence)
	case key.Matches(msg, k.EmergencyStop):
		a.ctrl.EmergencyStop(a.ctx)
		a.snap = a.ctrl.Snapshot()
		a.refreshBody()
		return a, nil
	case key.Matches(msg, k.StartBot):
		return a.dispatch("bot start", a.control(a.ctrl.ControlBot, "start"))
	case key.Matches(msg, k.StopBot):
		return a.dispatch("bot stop", a.control(a.ctrl.ControlBot, "stop"))
	case key.Matches(msg, k.RestartBot):
		return a.dispatch("bot restart", a.control(a.ctrl.ControlBot, "restart"))
	case key.Matches(msg, k.StartOllama):
		return a.dispatch("ollama start", a.control(a.ctrl.ControlOllama, "start"))
	case key.Matches(msg, k.StopOllama):
		return a.dispatch("ollama stop", a.control(a.ctrl.ControlOllama, "stop"))
	case key.Matches(msg, k.ClearBanner):
		a.ctrl.ClearBanner()
		a.snap = a.ctrl.Snapshot()
		return a, nil
	case key.Matches(msg, k.Up):
		a.moveCursor(-1)
		return a, nil
	case key.Matches(msg, k.Down):
		a.moveCursor(1)
		return a, nil
	case key.Matches(msg, k.Prompt) && tab == state.TabLab:
		a.prompt.Focus()
		return a, textinput.Blink
	}

	switch tab {
	case state.TabSessions, state.TabVendors:
		if key.Matches(msg, k.Select) {
			return a.selectRow()
		}
	case state.TabKnowledge:
		if key.Matches(msg, k.Toggle) {
			return a.toggleSource()
		}
	case state.TabSettings:
		return a.handleSettingsKey(msg)
	}
	return a, nil
}

func (a App) control(fn func(context.Context, string) error, action string) func(context.Context) error {
	return func(ctx context.Context) error { return fn(ctx, action) }
}

func (a App) selectTab(step int) func(context.Context) error {
	tabs := state.Tabs
	i := 0
	for j, t := range tabs {
		if t == a.snap.ActiveTab {
			i = j
		}
	}
	next := tabs[(i+step+len(tabs))%len(tabs)]
	return func(ctx context.Context) error { return a.ctrl.SelectTab(ctx, next) }
}

func (a *App) moveCursor(step int) {
	n := a.rowCount()
	if n == 0 {
		return
	}
	tab := a.snap.ActiveTab
	a.cursor[tab] = max(0, min(a.cursor[tab]+step, n-1))
	a.refreshBody()
}

func (a App) rowCount() int {
	switch a.snap.ActiveTab {
	case state.TabSessions:
		return len(a.snap.Sessions)
	case state.TabKnowledge:
		return len(a.snap.Knowledge)
	case state.TabVendors:
		return len(a.snap.Vendors)
	case state.TabSettings:
		return len(settingFields)
	}
	return 0
}

func (a App) row() int {
	return max(0, min(a.cursor[a.snap.ActiveTab], a.rowCount()-1))
}

func (a App) selectRow() (tea.Model, tea.Cmd) {
	if a.rowCount() == 0 {
		return a, nil
	}
	i := a.row()
	switch a.snap.ActiveTab {
	case state.TabSessions:
		id := a.snap.Sessions[i].ID
		return a.dispatch("select session", func(ctx context.Context) error { return a.ctrl.SelectSession(ctx, &id) })
	case state.TabVendors:
		id := a.snap.Vendors[i].ID
		return a.dispatch("select vendor", func(ctx context.Context) error { return a.ctrl.SelectVendor(ctx, id) })
	}
	return a, nil
}

func (a App) toggleSource() (tea.Model, tea.Cmd) {
	if len(a.snap.Knowledge) == 0 {
		return a, nil
	}
	src := a.snap.Knowledge[a.row()]
	return a.dispatch("toggle", func(ctx context.Context) error {
		return a.ctrl.ToggleKnowledge(ctx, src.ID, !src.Active())
	})
}

func (a App) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := a.keys
	field := settingFields[a.row()]
	delta := 0
	switch {
	case key.Matches(msg, k.Save):
		return a.dispatch("save config", a.ctrl.SaveConfig)
	case key.Matches(msg, k.Discard):
		a.ctrl.DiscardConfigEdits()
	case key.Matches(msg, k.Increase), key.Matches(msg, k.Toggle):
		delta = 1
	case key.Matches(msg, k.Decrease):
		delta = -1
	}
	if delta != 0 && field.adjust != nil {
		a.ctrl.EditConfig(func(d *state.ConfigDraft) { field.adjust(d, delta) })
	}
	a.snap = a.ctrl.Snapshot()
	a.refreshBody()
	return a, nil
}

func (a *App) relayout() {
	bodyWidth := max(20, a.width-sidebarWidth-2)
	// header, banner, prompt and help lines
	bodyHeight := max(5, a.height-6)
	a.body.Width = bodyWidth
	a.body.Height = bodyHeight
	a.prompt.Width = bodyWidth - 4
	a.help.Width = a.width
	a.refreshBody()
}

func (a *App) refreshBody() {
	a.body.SetContent(renderTab(a.snap, a.cursor[a.snap.ActiveTab], a.body.Width, a.theme))
}

func (a App) View() string {
	header := renderTabs(a.snap.ActiveTab, a.theme)
	sidebar := a.theme.SidebarStyle.Width(sidebarWidth).Height(a.body.Height).
		Render(renderSidebar(a.snap, a.theme, a.busy(), a.spinner.View()))
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", a.body.View())

	parts := []string{header, renderBanner(a.snap.Banner, a.theme), main}
	if a.snap.ActiveTab == state.TabLab {
		parts = append(parts, a.prompt.View())
	}
	parts = append(parts, a.help.View(a.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a App) busy() bool { return a.snap.Processing || a.inFlight > 0 }
