package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/journal"
	"github.com/prepbrain/prepdeck/internal/sim"
	"github.com/prepbrain/prepdeck/internal/state"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

type simStack struct {
	sim     *sim.Sim
	ctrl    *dashboard.Controller
	journal *journal.Store
}

// newSimStack wires a controller to the simulator over real HTTP.
func newSimStack(t *testing.T, s *sim.Sim) simStack {
	t.Helper()
	srv := httptest.NewServer(NewControlPlaneHandler(ServerDeps{Sim: s, Token: testToken}))
	t.Cleanup(srv.Close)

	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	client := controlplane.New(srv.URL, testToken, srv.Client())
	ctrl := dashboard.New(client, nil, dashboard.Options{Journal: j, StopTimeout: 2 * time.Second})
	t.Cleanup(ctrl.Wait)
	return simStack{sim: s, ctrl: ctrl, journal: j}
}

func banner(ctrl *dashboard.Controller) state.Banner { return ctrl.Snapshot().Banner }

func TestIntegration_SequenceBringsEverythingUp(t *testing.T) {
	st := newSimStack(t, sim.Empty())
	ctx := context.Background()

	if err := st.ctrl.ExecuteSequence(ctx); err != nil {
		t.Fatalf("ExecuteSequence: %v", err)
	}
	snap := st.ctrl.Snapshot()
	if snap.Status == nil || !snap.Status.Bot.Running || !snap.Status.Ollama.Running {
		t.Errorf("status after sequence = %+v", snap.Status)
	}
	if snap.Banner.Text != "Sequence complete." {
		t.Errorf("banner = %+v", snap.Banner)
	}
	if snap.Processing {
		t.Error("processing flag left set")
	}
	if len(snap.Logs) == 0 {
		t.Error("logs not reloaded")
	}

	entries, err := st.journal.Recent(ctx, journal.Query{Command: "Sequence"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].OK {
		t.Errorf("journal = %+v", entries)
	}
}

func TestIntegration_SequenceStopsAtRestartWithoutRollback(t *testing.T) {
	s := sim.Empty()
	s.Inject("control.bot.restart", sim.Fault{Status: http.StatusInternalServerError, Detail: "pid file is stale"})
	st := newSimStack(t, s)
	ctx := context.Background()

	if err := st.ctrl.ExecuteSequence(ctx); err == nil {
		t.Fatal("expected error")
	}
	b := banner(st.ctrl)
	if b.Kind != state.BannerError || b.Text != "Sequence failed: pid file is stale" {
		t.Errorf("banner = %+v", b)
	}

	status, err := s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Ollama.Running {
		t.Error("ollama should stay up after a failed restart")
	}
	if status.Bot.Running {
		t.Error("bot should not be running")
	}
}

func TestIntegration_EmergencyStop(t *testing.T) {
	st := newSimStack(t, sim.New())
	ctx, cancel := context.WithCancel(context.Background())

	st.ctrl.EmergencyStop(ctx)
	cancel()
	if got := banner(st.ctrl).Text; got != "Emergency stop issued." {
		t.Errorf("banner = %q", got)
	}
	st.ctrl.Wait()

	status, err := st.sim.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Bot.Running {
		t.Error("bot still running after emergency stop")
	}
	if snap := st.ctrl.Snapshot(); snap.Status == nil || snap.Status.Bot.Running {
		t.Error("status not reloaded after emergency stop")
	}
}

func TestIntegration_AutonomyRefusalIsVerbatim(t *testing.T) {
	st := newSimStack(t, sim.New())
	if err := st.ctrl.StartAutonomy(context.Background()); !controlplane.IsStatus(err, http.StatusConflict) {
		t.Fatalf("err = %v, want 409", err)
	}
	want := "Autonomy start failed: Autonomy is managed by bot startup and cannot be started manually."
	if got := banner(st.ctrl).Text; got != want {
		t.Errorf("banner = %q, want %q", got, want)
	}
	if a := st.ctrl.Snapshot().Autonomy; a == nil || a.Status != "Running" {
		t.Errorf("autonomy not reloaded: %+v", st.ctrl.Snapshot().Autonomy)
	}
}

func TestIntegration_SaveConfigKeepsUnmodelledKeys(t *testing.T) {
	s := sim.New()
	ctx := context.Background()
	if _, err := s.PutConfig(ctx, controlplane.ConfigData{
		"ollama":   map[string]any{"model": "llama3.1:8b", "keep_alive": "5m"},
		"telegram": map[string]any{"allowed_users": []any{"ana"}},
	}); err != nil {
		t.Fatal(err)
	}
	st := newSimStack(t, s)

	if err := st.ctrl.LoadConfig(ctx); err != nil {
		t.Fatal(err)
	}
	st.ctrl.EditConfig(func(d *state.ConfigDraft) { d.Model = "qwen2.5:7b" })
	if err := st.ctrl.SaveConfig(ctx); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	cfg, err := s.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ollama := cfg["ollama"].(map[string]any)
	if ollama["model"] != "qwen2.5:7b" || ollama["keep_alive"] != "5m" {
		t.Errorf("ollama = %v", ollama)
	}
	if _, ok := cfg["telegram"]; !ok {
		t.Error("telegram section dropped")
	}
	if st.ctrl.Snapshot().DraftDirty {
		t.Error("draft still dirty after save")
	}
}

func TestIntegration_UploadRefetchesKnowledge(t *testing.T) {
	st := newSimStack(t, sim.Empty())
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "stock_ratios.txt")
	if err := os.WriteFile(path, []byte("mirepoix 2:1:1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ctrl.UploadKnowledgeFile(ctx, path, controlplane.UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	sources := st.ctrl.Snapshot().Knowledge
	if len(sources) != 1 || sources[0].Title != "Stock Ratios" {
		t.Fatalf("knowledge = %+v", sources)
	}
	if got := banner(st.ctrl).Text; got != "Ingested stock_ratios.txt." {
		t.Errorf("banner = %q", got)
	}

	if err := st.ctrl.ToggleKnowledge(ctx, sources[0].ID, false); err != nil {
		t.Fatal(err)
	}
	if st.ctrl.Snapshot().Knowledge[0].Active() {
		t.Error("source still active after toggle")
	}
}

func TestIntegration_RefreshIsolatesFailingDomain(t *testing.T) {
	s := sim.New()
	s.Inject("knowledge", sim.Fault{Status: http.StatusInternalServerError, Detail: "vector store offline"})
	st := newSimStack(t, s)
	ctx := context.Background()

	if err := st.ctrl.SelectTab(ctx, state.TabKnowledge); err == nil {
		t.Fatal("expected knowledge load error")
	}
	if err := st.ctrl.Refresh(ctx); err == nil {
		t.Fatal("expected refresh error")
	}
	snap := st.ctrl.Snapshot()
	if snap.Banner.Text != "Knowledge load failed: vector store offline" {
		t.Errorf("banner = %+v", snap.Banner)
	}
	if snap.Status == nil || !snap.Status.Bot.Running {
		t.Error("status should still load while knowledge fails")
	}
}

func TestIntegration_MenuAndPrepUpdate(t *testing.T) {
	st := newSimStack(t, sim.New())
	ctx := context.Background()

	if err := st.ctrl.SelectTab(ctx, state.TabRecipes); err != nil {
		t.Fatal(err)
	}
	recipes := st.ctrl.Snapshot().Recipes
	if len(recipes) == 0 {
		t.Fatal("no recipes")
	}
	if err := st.ctrl.PrepUpdate(ctx, map[int64]float64{*recipes[0].ID: 2.5}); err != nil {
		t.Fatal(err)
	}
	if got := st.ctrl.Snapshot().Recipes[0].OnHand; got != 2.5 {
		t.Errorf("on hand = %v, want 2.5", got)
	}

	if err := st.ctrl.SelectTab(ctx, state.TabMenu); err != nil {
		t.Fatal(err)
	}
	menu := st.ctrl.Snapshot().Menu
	if menu == nil {
		t.Fatal("menu not loaded")
	}
	if len(menu.Items) != len(recipes) {
		t.Errorf("menu items = %d, want %d", len(menu.Items), len(recipes))
	}
	for _, it := range menu.Items {
		if !strings.Contains("Star Puzzle Plowhorse Dog", it.Classification) || it.Classification == "" {
			t.Errorf("classification %q", it.Classification)
		}
	}
}
