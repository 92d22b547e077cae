package tui

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/prepbrain/prepdeck/internal/api"
	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/sim"
	"github.com/prepbrain/prepdeck/internal/state"
)

func newTestApp(t *testing.T, s *sim.Sim) (App, *dashboard.Controller) {
	t.Helper()
	srv := httptest.NewServer(api.NewControlPlaneHandler(api.ServerDeps{Sim: s}))
	t.Cleanup(srv.Close)

	client := controlplane.New(srv.URL, "", srv.Client())
	ctrl := dashboard.New(client, nil, dashboard.Options{StopTimeout: 2 * time.Second})
	t.Cleanup(ctrl.Wait)

	app := NewApp(context.Background(), ctrl, nil, PlainTheme())
	m, _ := app.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return m.(App), ctrl
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding a finished
// controller call back into the model.
func press(t *testing.T, app App, msg tea.KeyMsg) App {
	t.Helper()
	m, cmd := app.Update(msg)
	app = m.(App)
	if cmd == nil {
		return app
	}
	if done, ok := cmd().(commandDoneMsg); ok {
		m, _ = app.Update(done)
		app = m.(App)
	}
	return app
}

func TestApp_TabKeyLoadsNextTab(t *testing.T) {
	app, ctrl := newTestApp(t, sim.New())

	app = press(t, app, tea.KeyMsg{Type: tea.KeyTab})

	if app.snap.ActiveTab != state.TabSessions {
		t.Fatalf("active tab = %q, want sessions", app.snap.ActiveTab)
	}
	if len(ctrl.Snapshot().Sessions) == 0 {
		t.Error("sessions not loaded on tab switch")
	}
	if app.inFlight != 0 {
		t.Errorf("inFlight = %d after command finished", app.inFlight)
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyShiftTab})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyShiftTab})
	if app.snap.ActiveTab != state.TabLab {
		t.Errorf("prev from overview = %q, want lab", app.snap.ActiveTab)
	}
}

func TestApp_SettingsAdjustMarksDraftDirty(t *testing.T) {
	app, ctrl := newTestApp(t, sim.New())
	ctx := context.Background()
	if err := ctrl.SelectTab(ctx, state.TabSettings); err != nil {
		t.Fatal(err)
	}
	m, _ := app.Update(stateChangedMsg{})
	app = m.(App)
	before := app.snap.Draft.Temperature

	app = press(t, app, runes("j"))
	app = press(t, app, runes("+"))

	snap := ctrl.Snapshot()
	if !snap.DraftDirty {
		t.Fatal("draft not marked dirty")
	}
	if got := snap.Draft.Temperature; got <= before {
		t.Errorf("temperature = %v, want above %v", got, before)
	}
	if !strings.Contains(app.body.View(), "unsaved changes") {
		t.Error("settings body does not show the dirty marker")
	}

	app = press(t, app, runes("u"))
	if ctrl.Snapshot().DraftDirty {
		t.Error("discard left the draft dirty")
	}
}

func TestApp_EmergencyStopIsImmediate(t *testing.T) {
	s := sim.New()
	app, ctrl := newTestApp(t, s)

	m, cmd := app.Update(runes("X"))
	app = m.(App)
	if cmd != nil {
		t.Error("emergency stop should not queue a command")
	}
	if app.snap.Banner.Text != "Emergency stop issued." {
		t.Errorf("banner = %+v", app.snap.Banner)
	}

	ctrl.Wait()
	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Bot.Running {
		t.Error("bot still running after emergency stop")
	}
}

func TestApp_LabPromptRouting(t *testing.T) {
	app, ctrl := newTestApp(t, sim.New())
	ctx := context.Background()

	_, brain := app.labCommand("what is par for beurre blanc")
	if err := brain(ctx); err != nil {
		t.Fatalf("brain: %v", err)
	}
	if ctrl.Snapshot().BrainAnswer == "" {
		t.Error("brain answer not stored")
	}

	name, draft := app.labCommand("draft: two cases of lemons")
	if name != "draft" {
		t.Errorf("name = %q, want draft", name)
	}
	err := draft(ctx)
	if !dashboard.IsValidation(err) {
		t.Fatalf("draft without vendor: err = %v, want validation", err)
	}
	if got := ctrl.Snapshot().Banner.Text; got != "Select a vendor before drafting." {
		t.Errorf("banner = %q", got)
	}
}

func TestApp_PromptOnlyOnLabTab(t *testing.T) {
	app, _ := newTestApp(t, sim.New())

	app = press(t, app, runes("/"))
	if app.prompt.Focused() {
		t.Fatal("prompt focused outside the lab tab")
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyShiftTab})
	app = press(t, app, runes("/"))
	if !app.prompt.Focused() {
		t.Fatal("prompt not focused on lab tab")
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.prompt.Focused() {
		t.Error("esc did not blur the prompt")
	}
}

func TestApp_ViewShowsTabsAndStatus(t *testing.T) {
	app, ctrl := newTestApp(t, sim.New())
	if err := ctrl.LoadStatus(context.Background()); err != nil {
		t.Fatal(err)
	}
	m, _ := app.Update(stateChangedMsg{})
	view := m.(App).View()

	for _, want := range []string{"Overview", "Lab", "Bot", "Ollama", "KITCHEN A2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSettingFieldsClamp(t *testing.T) {
	byLabel := map[string]settingField{}
	for _, f := range settingFields {
		byLabel[f.label] = f
	}

	d := state.ConfigDraft{Temperature: 2, MaxTokens: 100, TopK: 1}
	byLabel["Temperature"].adjust(&d, 1)
	byLabel["Max tokens"].adjust(&d, -1)
	byLabel["Top K"].adjust(&d, -1)
	byLabel["RAG"].adjust(&d, 1)

	want := state.ConfigDraft{Temperature: 2, MaxTokens: 64, TopK: 1, RAGEnabled: true}
	if d != want {
		t.Errorf("draft = %+v, want %+v", d, want)
	}
	if byLabel["Model"].adjust != nil {
		t.Error("model should be display only")
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := RenderMarkdown("  ", 80); got != "" {
		t.Errorf("blank input rendered %q", got)
	}
	if got := RenderMarkdown("**Shallots** are low", 60); !strings.Contains(got, "Shallots") {
		t.Errorf("rendered = %q", got)
	}
}

func TestSignalBar(t *testing.T) {
	if got := signalBar(98); got != "▮▮▮▮▮ 98%" {
		t.Errorf("signalBar(98) = %q", got)
	}
	if got := signalBar(39); got != "▮▮▯▯▯ 39%" {
		t.Errorf("signalBar(39) = %q", got)
	}
}
