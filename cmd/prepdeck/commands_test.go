package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/prepbrain/prepdeck/internal/api"
	"github.com/prepbrain/prepdeck/internal/config"
	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/journal"
	"github.com/prepbrain/prepdeck/internal/sim"
)

var ctx = context.Background()

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

// useSim points every command at a simulator behind a recording proxy.
func useSim(t *testing.T, s *sim.Sim) *[]recordedRequest {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	handler := api.NewControlPlaneHandler(api.ServerDeps{Sim: s, Token: "test-token"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})
		mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	cfg := config.Config{
		Server:  config.ServerConfig{URL: srv.URL, Timeout: "5s", APIToken: "test-token"},
		Poll:    config.PollConfig{Interval: "5s", LogLines: 120, LogLevel: "all"},
		Storage: config.StorageConfig{DataDir: dataDir},
	}

	old := newConsole
	newConsole = func(tune ...func(*dashboard.Options)) (*console, error) {
		j, err := journal.Open(dataDir)
		if err != nil {
			return nil, err
		}
		return buildConsole(cfg, j, srv.Client(), tune...)
	}
	t.Cleanup(func() { newConsole = old })
	return &requests
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	noColor = true
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	reqs := useSim(t, sim.New())

	out, err := runCLI(t, "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Bot:", "running", "KITCHEN A2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if len(*reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*reqs))
	}
	r := (*reqs)[0]
	if r.Method != "GET" || r.Path != "/api/status" {
		t.Errorf("request = %s %s, want GET /api/status", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestLogsCommand_Flags(t *testing.T) {
	reqs := useSim(t, sim.New())

	if _, err := runCLI(t, "logs", "--lines", "5", "--level", "warnings"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (*reqs)[0].Path; got != "/api/logs?level=warnings&lines=5" {
		t.Errorf("path = %q", got)
	}
}

func TestControlCommand_UnknownTarget(t *testing.T) {
	useSim(t, sim.New())

	_, err := runCLI(t, "control", "fryer", "start")
	if err == nil || !strings.Contains(err.Error(), "unknown target") {
		t.Fatalf("err = %v, want unknown target", err)
	}
}

func TestControlCommand_FailureIsReported(t *testing.T) {
	s := sim.Empty()
	s.Inject("control.bot.start", sim.Fault{Status: http.StatusInternalServerError, Detail: "boom"})
	useSim(t, s)

	_, err := runCLI(t, "control", "bot", "start")
	if !errors.Is(err, errReported) {
		t.Fatalf("err = %v, want errReported", err)
	}
	if !strings.Contains(err.Error(), "Bot start failed: boom") {
		t.Errorf("err = %q", err)
	}
}

func TestSequenceCommand_Journaled(t *testing.T) {
	s := sim.Empty()
	useSim(t, s)

	if _, err := runCLI(t, "sequence"); err != nil {
		t.Fatalf("sequence: %v", err)
	}
	st, _ := s.Status(ctx)
	if !st.Bot.Running || !st.Ollama.Running {
		t.Errorf("status after sequence = %+v", st)
	}

	out, err := runCLI(t, "journal", "--command", "Sequence")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if !strings.Contains(out, "Sequence") || !strings.Contains(out, "ok") {
		t.Errorf("journal output:\n%s", out)
	}
}

func TestEstopCommand(t *testing.T) {
	s := sim.New()
	useSim(t, s)

	if _, err := runCLI(t, "estop"); err != nil {
		t.Fatalf("estop: %v", err)
	}
	st, _ := s.Status(ctx)
	if st.Bot.Running {
		t.Error("bot still running after estop")
	}
}

func TestRemoteConfigSet(t *testing.T) {
	s := sim.New()
	useSim(t, s)

	if _, err := runCLI(t, "remote-config", "set", "top_k=5", "ocr=true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := s.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rag, _ := cfg["rag"].(map[string]any)
	if rag["top_k"] != float64(5) {
		t.Errorf("rag.top_k = %v, want 5", rag["top_k"])
	}
	ocr, _ := rag["ocr"].(map[string]any)
	if ocr["enabled"] != true {
		t.Errorf("rag.ocr.enabled = %v, want true", ocr["enabled"])
	}
	runtime, _ := cfg["runtime"].(map[string]any)
	if runtime["position_label"] != "KITCHEN A2" {
		t.Errorf("runtime section not preserved: %v", cfg["runtime"])
	}
}

func TestRemoteConfigSet_InvalidAssignment(t *testing.T) {
	reqs := useSim(t, sim.New())

	for _, arg := range []string{"top_k", "colour=red"} {
		if _, err := runCLI(t, "remote-config", "set", arg); err == nil {
			t.Errorf("set %q: expected error", arg)
		}
	}
	if len(*reqs) != 0 {
		t.Errorf("invalid assignments still hit the server: %+v", *reqs)
	}

	if _, err := runCLI(t, "remote-config", "set", "temperature=warm"); err == nil {
		t.Error("expected parse error for temperature=warm")
	}
}

func TestRemoteConfigShow_YAML(t *testing.T) {
	useSim(t, sim.New())

	out, err := runCLI(t, "remote-config", "show", "--yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "ollama:") || !strings.Contains(out, "top_k: 3") {
		t.Errorf("yaml output:\n%s", out)
	}
}

func TestVendorCommands(t *testing.T) {
	s := sim.New()
	useSim(t, s)

	out, err := runCLI(t, "vendors", "save", "--name", "Harbor Fish", "--email", "fish@harbor.example")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("save did not print the new id")
	}

	if _, err := runCLI(t, "items", "save", "--vendor", id, "--name", "Halibut", "--unit", "lb", "--price", "18.5"); err != nil {
		t.Fatalf("items save: %v", err)
	}
	out, err = runCLI(t, "items", id)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if !strings.Contains(out, "Halibut") || !strings.Contains(out, "18.50") {
		t.Errorf("items output:\n%s", out)
	}

	if _, err := runCLI(t, "vendors", "save"); !errors.Is(err, errReported) {
		t.Errorf("nameless vendor: err = %v, want errReported", err)
	}
}

func TestItemsDeleteCommand_RefetchesVendorCatalogue(t *testing.T) {
	s := sim.New()
	reqs := useSim(t, s)

	vendor, err := s.SaveVendor(ctx, controlplane.Vendor{Name: "Harbor Fish"})
	if err != nil {
		t.Fatal(err)
	}
	item, err := s.SaveVendorItem(ctx, controlplane.VendorItem{VendorID: *vendor.ID, Name: "Halibut", Unit: "lb"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "items", "delete", formatID(item.ID)); err == nil {
		t.Fatal("expected error without --vendor")
	}
	if len(*reqs) != 0 {
		t.Fatalf("requests = %+v, want none", *reqs)
	}

	if _, err := runCLI(t, "items", "delete", formatID(item.ID), "--vendor", formatID(vendor.ID)); err != nil {
		t.Fatalf("items delete: %v", err)
	}
	var got []string
	for _, r := range *reqs {
		got = append(got, r.Method+" "+r.Path)
	}
	want := []string{
		"DELETE /api/vendors/items/" + formatID(item.ID),
		"GET /api/vendors/" + formatID(vendor.ID) + "/items",
	}
	if !slices.Equal(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if items, _ := s.VendorItems(ctx, *vendor.ID); len(items) != 0 {
		t.Errorf("items left = %+v", items)
	}
}

func TestPrepUpdateCommand(t *testing.T) {
	s := sim.New()
	reqs := useSim(t, s)

	if _, err := runCLI(t, "prep-update", "nope"); err == nil {
		t.Fatal("expected error for malformed count")
	}
	if len(*reqs) != 0 {
		t.Fatal("malformed count reached the server")
	}

	recipes, _ := s.Recipes(ctx)
	arg := formatID(recipes[0].ID) + "=3.5"
	if _, err := runCLI(t, "prep-update", arg); err != nil {
		t.Fatalf("prep-update: %v", err)
	}
	recipes, _ = s.Recipes(ctx)
	if recipes[0].OnHand != 3.5 {
		t.Errorf("on hand = %v, want 3.5", recipes[0].OnHand)
	}
}

func TestMenuCommand(t *testing.T) {
	useSim(t, sim.New())

	out, err := runCLI(t, "menu")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Beurre Blanc", "Star", "Plowhorse", "Average margin"} {
		if !strings.Contains(out, want) {
			t.Errorf("menu output missing %q", want)
		}
	}
}

func TestDraftEmailCommand(t *testing.T) {
	s := sim.New()
	useSim(t, s)
	vendors, _ := s.Vendors(ctx)

	out, err := runCLI(t, "draft-email", formatID(vendors[0].ID), "two", "cases", "of", "shallots")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Order request for "+vendors[0].Name) {
		t.Errorf("draft output:\n%s", out)
	}
}

func TestAutonomyStart_RefusalVerbatim(t *testing.T) {
	useSim(t, sim.New())

	_, err := runCLI(t, "autonomy", "start")
	if !errors.Is(err, errReported) {
		t.Fatalf("err = %v, want errReported", err)
	}
}

func TestBuildConsole_NoJournal(t *testing.T) {
	c, err := buildConsole(config.Config{
		Server: config.ServerConfig{URL: "http://127.0.0.1:1/", Timeout: "1s"},
		Poll:   config.PollConfig{LogLines: 10, LogLevel: "errors"},
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.ctrl.Client().BaseURL(); got != "http://127.0.0.1:1" {
		t.Errorf("base url = %q", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestBuildConsole_BadTimeout(t *testing.T) {
	_, err := buildConsole(config.Config{Server: config.ServerConfig{URL: "http://x", Timeout: "soon"}}, nil, nil)
	if err == nil {
		t.Fatal("expected error for bad timeout")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestReport_PassesThroughUnbanneredErrors(t *testing.T) {
	client := controlplane.New("http://127.0.0.1:1", "", nil)
	ctrl := dashboard.New(client, nil, dashboard.Options{})
	plain := errors.New("plain")
	if err := report(ctrl, plain); err != plain {
		t.Errorf("report = %v, want the original error", err)
	}
	if err := report(ctrl, nil); err != nil {
		t.Errorf("report(nil) = %v", err)
	}
}
