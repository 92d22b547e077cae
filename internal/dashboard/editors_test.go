package dashboard

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/state"
)

func TestUploadKnowledge_ValidationNeverReachesNetwork(t *testing.T) {
	fp := newFakePlane(t, nil)
	c := fp.controller(Options{})

	_, err := c.UploadKnowledgeFile(ctx, "  ", controlplane.UploadOptions{})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	assertBanner(t, c, state.BannerError, "Select a file before ingestion.")

	_, err = c.UploadKnowledgeFile(ctx, "/tmp/menu.xlsx", controlplane.UploadOptions{})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if got := fp.recorded(); len(got) != 0 {
		t.Errorf("calls = %v, want none", got)
	}
}

func TestUploadKnowledgeFile_RefetchesList(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"POST /api/knowledge/upload": ok(`{"ok":true,"chunks":4}`),
		"GET /api/knowledge":         ok(`{"items":[{"id":"k1","title":"notes","chunk_count":4,"status":"active"}]}`),
	})
	c := fp.controller(Options{})

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Braise short ribs 3h at 150C."), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := c.UploadKnowledgeFile(ctx, path, controlplane.UploadOptions{ExtractImages: true})
	if err != nil {
		t.Fatalf("UploadKnowledgeFile: %v", err)
	}
	if res["chunks"] != float64(4) {
		t.Errorf("result = %v", res)
	}
	want := []string{"POST /api/knowledge/upload", "GET /api/knowledge"}
	if got := fp.recorded(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	body := fp.lastBody("POST /api/knowledge/upload")
	if !strings.Contains(body, "Braise short ribs") || !strings.Contains(body, `name="extract_images"`) {
		t.Errorf("multipart body missing fields:\n%s", body)
	}
	assertBanner(t, c, state.BannerNotice, "Ingested notes.txt.")
	if len(c.Snapshot().Knowledge) != 1 {
		t.Errorf("Knowledge not refetched")
	}
}

func TestToggleKnowledge_RespectsCanToggle(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"GET /api/knowledge":            ok(`{"items":[{"id":"k1","title":"Base recipes","can_toggle":false},{"id":"k2","title":"Specials","can_toggle":true}]}`),
		"POST /api/knowledge/k2/toggle": ok(`{"ok":true}`),
	})
	c := fp.controller(Options{})
	if err := c.LoadKnowledge(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.ToggleKnowledge(ctx, "k1", false); !IsValidation(err) {
		t.Errorf("toggle locked source: err = %v", err)
	}
	if err := c.ToggleKnowledge(ctx, "k2", false); err != nil {
		t.Fatalf("ToggleKnowledge: %v", err)
	}
	if got := fp.lastBody("POST /api/knowledge/k2/toggle"); got != `{"active":false}` {
		t.Errorf("toggle body = %s", got)
	}
	if fp.count("GET /api/knowledge") != 2 {
		t.Errorf("calls = %v, want refetch after toggle", fp.recorded())
	}
	assertBanner(t, c, state.BannerNotice, "Source disabled.")
}

func TestSaveConfig_PreservesUnknownKeys(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"GET /api/config": ok(`{"config":{
			"ollama":{"model":"llama3.1:8b","temperature":0.2,"max_tokens":512,"host":"http://localhost:11434"},
			"rag":{"top_k":3,"enabled":true,"ocr":{"enabled":true,"engine":"tesseract"}},
			"telegram":{"allowed_user_ids":[1,2]},
			"system_prompt":"You are a sous chef."}}`),
		"PUT /api/config": func(w http.ResponseWriter, r *http.Request) {
			// Echo the stored document back like the control plane does.
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true,"config":{"ollama":{"model":"qwen2.5:7b"}}}`))
		},
	})
	c := fp.controller(Options{})

	if err := c.LoadConfig(ctx); err != nil {
		t.Fatal(err)
	}
	c.EditConfig(func(d *state.ConfigDraft) {
		d.Model = "qwen2.5:7b"
		d.TopK = 5
	})
	if !c.Snapshot().DraftDirty {
		t.Fatal("draft not dirty after edit")
	}

	if err := c.SaveConfig(ctx); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(fp.lastBody("PUT /api/config")), &sent); err != nil {
		t.Fatal(err)
	}
	ollama := sent["ollama"].(map[string]any)
	if ollama["model"] != "qwen2.5:7b" || ollama["host"] != "http://localhost:11434" || ollama["temperature"] != 0.2 {
		t.Errorf("ollama = %v", ollama)
	}
	rag := sent["rag"].(map[string]any)
	if rag["top_k"] != float64(5) || rag["ocr"].(map[string]any)["engine"] != "tesseract" {
		t.Errorf("rag = %v", rag)
	}
	if sent["system_prompt"] != "You are a sous chef." || sent["telegram"] == nil {
		t.Errorf("unknown keys dropped: %v", sent)
	}

	snap := c.Snapshot()
	if snap.DraftDirty {
		t.Error("draft still dirty after save")
	}
	if snap.Draft.Model != "qwen2.5:7b" {
		t.Errorf("Draft.Model = %q", snap.Draft.Model)
	}
	assertBanner(t, c, state.BannerNotice, "Settings saved.")
}

func TestSaveConfig_RequiresLoadedConfig(t *testing.T) {
	fp := newFakePlane(t, nil)
	c := fp.controller(Options{})
	if err := c.SaveConfig(ctx); !IsValidation(err) {
		t.Fatalf("err = %v", err)
	}
	if len(fp.recorded()) != 0 {
		t.Errorf("calls = %v", fp.recorded())
	}
}

func TestSaveVendor_IDSelectsVerbAndRefetches(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"POST /api/vendors":  ok(`{"ok":true,"id":9}`),
		"PUT /api/vendors/9": ok(`{"ok":true}`),
		"GET /api/vendors":   ok(`{"items":[{"id":9,"name":"Baldor"}]}`),
	})
	c := fp.controller(Options{})

	res, err := c.SaveVendor(ctx, controlplane.Vendor{Name: "Baldor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ID == nil || *res.ID != 9 {
		t.Fatalf("SaveResult = %+v", res)
	}
	if _, err := c.SaveVendor(ctx, controlplane.Vendor{ID: res.ID, Name: "Baldor Foods"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []string{"POST /api/vendors", "GET /api/vendors", "PUT /api/vendors/9", "GET /api/vendors"}
	if got := fp.recorded(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if _, err := c.SaveVendor(ctx, controlplane.Vendor{}); !IsValidation(err) {
		t.Errorf("blank name: err = %v", err)
	}
}

func TestDeleteVendor_ClearsSelection(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"GET /api/vendors/9/items": ok(`{"items":[{"id":1,"vendor_id":9,"name":"Shallots"}]}`),
		"DELETE /api/vendors/9":    ok(`{"ok":true}`),
		"GET /api/vendors":         ok(`{"items":[]}`),
	})
	c := fp.controller(Options{})
	id := int64(9)
	if err := c.SelectVendor(ctx, &id); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteVendor(ctx, 9); err != nil {
		t.Fatalf("DeleteVendor: %v", err)
	}
	snap := c.Snapshot()
	if snap.SelectedVendor != nil || snap.VendorItems != nil {
		t.Errorf("selection = %v items = %+v", snap.SelectedVendor, snap.VendorItems)
	}
}

func TestSaveVendorItem_DefaultsToSelectedVendor(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"GET /api/vendors/3/items":  ok(`{"items":[]}`),
		"POST /api/vendors/3/items": ok(`{"ok":true,"id":12}`),
	})
	c := fp.controller(Options{})

	if _, err := c.SaveVendorItem(ctx, controlplane.VendorItem{Name: "Butter"}); !IsValidation(err) {
		t.Fatalf("no vendor selected: err = %v", err)
	}

	id := int64(3)
	c.SelectVendor(ctx, &id)
	if _, err := c.SaveVendorItem(ctx, controlplane.VendorItem{Name: "Butter", Unit: "lb"}); err != nil {
		t.Fatalf("SaveVendorItem: %v", err)
	}
	if fp.count("GET /api/vendors/3/items") != 2 {
		t.Errorf("calls = %v, want refetch of items", fp.recorded())
	}
}

func TestPrepUpdate(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"POST /api/prep-update": ok(`{"ok":true}`),
		"GET /api/recipes":      ok(`{"recipes":[]}`),
	})
	c := fp.controller(Options{})

	if err := c.PrepUpdate(ctx, nil); !IsValidation(err) {
		t.Errorf("empty: err = %v", err)
	}
	if err := c.PrepUpdate(ctx, map[int64]float64{1: -2}); !IsValidation(err) {
		t.Errorf("negative: err = %v", err)
	}
	if err := c.PrepUpdate(ctx, map[int64]float64{7: 1.5}); err != nil {
		t.Fatalf("PrepUpdate: %v", err)
	}
	if got := fp.lastBody("POST /api/prep-update"); got != `{"7":1.5}` {
		t.Errorf("body = %s", got)
	}
	want := []string{"POST /api/prep-update", "GET /api/recipes"}
	if got := fp.recorded(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestClearSession(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"DELETE /api/sessions/4/messages": ok(`{"deleted":6}`),
		"GET /api/sessions/4/messages":    ok(`{"items":[]}`),
		"GET /api/sessions":               ok(`{"items":[{"id":4,"message_count":0}]}`),
	})
	c := fp.controller(Options{})
	id := int64(4)
	c.SelectSession(ctx, &id)

	n, err := c.ClearSession(ctx, 4)
	if err != nil || n != 6 {
		t.Fatalf("ClearSession = %d, %v", n, err)
	}
	assertBanner(t, c, state.BannerNotice, "Cleared 6 messages.")
}

func TestDraftEmail_Validation(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"POST /api/composer/draft": ok(`{"vendor_email":"orders@baldor.test","subject":"Order for Friday","body":"Hi team"}`),
	})
	c := fp.controller(Options{})
	vendor := int64(2)

	if _, err := c.DraftEmail(ctx, nil, "two cases of shallots"); !IsValidation(err) {
		t.Errorf("no vendor: err = %v", err)
	}
	if _, err := c.DraftEmail(ctx, &vendor, "   "); !IsValidation(err) {
		t.Errorf("blank context: err = %v", err)
	}
	assertBanner(t, c, state.BannerError, "Enter context before drafting.")
	if len(fp.recorded()) != 0 {
		t.Fatalf("validation reached network: %v", fp.recorded())
	}

	draft, err := c.DraftEmail(ctx, &vendor, "two cases of shallots")
	if err != nil {
		t.Fatalf("DraftEmail: %v", err)
	}
	if draft.Subject != "Order for Friday" || c.Snapshot().EmailDraft == nil {
		t.Errorf("draft = %+v", draft)
	}
	if got := fp.lastBody("POST /api/composer/draft"); got != `{"context":"two cases of shallots","vendor_id":2}` {
		t.Errorf("body = %s", got)
	}
}

func TestTestBrain(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"POST /api/test/brain": ok(`{"answer":"Par for stock is 4 qt."}`),
	})
	c := fp.controller(Options{})

	if _, err := c.TestBrain(ctx, ""); !IsValidation(err) {
		t.Errorf("blank prompt: err = %v", err)
	}
	answer, err := c.TestBrain(ctx, "par for stock?")
	if err != nil || answer != "Par for stock is 4 qt." {
		t.Fatalf("TestBrain = %q, %v", answer, err)
	}
	if c.Snapshot().BrainAnswer != answer {
		t.Error("answer not stored")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	fp := newFakePlane(t, nil)
	c := fp.controller(Options{})

	if _, err := c.Transcribe(ctx, ""); !IsValidation(err) {
		t.Errorf("blank path: err = %v", err)
	}
	_, err := c.Transcribe(ctx, filepath.Join(t.TempDir(), "missing.ogg"))
	if err == nil || IsValidation(err) {
		t.Fatalf("err = %v, want open error", err)
	}
	if c.Snapshot().Banner.Kind != state.BannerError {
		t.Errorf("banner = %+v", c.Snapshot().Banner)
	}
}

func TestDeleteVendorItem_RefetchesNamedVendor(t *testing.T) {
	fp := newFakePlane(t, map[string]http.HandlerFunc{
		"DELETE /api/vendors/items/9": ok(`{"ok":true}`),
		"GET /api/vendors/3/items":    ok(`{"items":[]}`),
	})
	c := fp.controller(Options{})

	if err := c.DeleteVendorItem(ctx, 0, 9); !IsValidation(err) {
		t.Fatalf("no vendor: err = %v, want validation error", err)
	}
	if got := fp.recorded(); len(got) != 0 {
		t.Fatalf("calls = %v, want none", got)
	}

	if err := c.DeleteVendorItem(ctx, 3, 9); err != nil {
		t.Fatalf("DeleteVendorItem: %v", err)
	}
	want := []string{"DELETE /api/vendors/items/9", "GET /api/vendors/3/items"}
	if got := fp.recorded(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if sel := c.Snapshot().SelectedVendor; sel == nil || *sel != 3 {
		t.Errorf("SelectedVendor = %v, want 3", sel)
	}
	assertBanner(t, c, state.BannerNotice, "Item deleted.")
}

func TestListMutations_RefetchThenBanner(t *testing.T) {
	id := func(v int64) *int64 { return &v }
	tests := []struct {
		name     string
		mutation string // "METHOD /path" of the write
		success  string // write response body on success
		list     string // "METHOD /path" of the refetch
		listBody string
		run      func(*Controller) error
		notice   string
		label    string // prefix of the failure banner
	}{
		{
			name: "knowledge upload", mutation: "POST /api/knowledge/upload", success: `{"ok":true}`,
			list: "GET /api/knowledge", listBody: `{"items":[]}`,
			run: func(c *Controller) error {
				_, err := c.UploadKnowledge(ctx, "notes.txt", strings.NewReader("stock"), controlplane.UploadOptions{})
				return err
			},
			notice: "Ingested notes.txt.", label: "Ingestion",
		},
		{
			name: "knowledge toggle", mutation: "POST /api/knowledge/k1/toggle", success: `{"ok":true}`,
			list: "GET /api/knowledge", listBody: `{"items":[]}`,
			run:    func(c *Controller) error { return c.ToggleKnowledge(ctx, "k1", true) },
			notice: "Source enabled.", label: "Knowledge toggle",
		},
		{
			name: "knowledge delete", mutation: "DELETE /api/knowledge/k1", success: `{"ok":true}`,
			list: "GET /api/knowledge", listBody: `{"items":[]}`,
			run:    func(c *Controller) error { return c.DeleteKnowledge(ctx, "k1") },
			notice: "Source deleted.", label: "Knowledge delete",
		},
		{
			name: "vendor save", mutation: "POST /api/vendors", success: `{"ok":true,"id":9}`,
			list: "GET /api/vendors", listBody: `{"items":[]}`,
			run: func(c *Controller) error {
				_, err := c.SaveVendor(ctx, controlplane.Vendor{Name: "Baldor"})
				return err
			},
			notice: "Vendor saved.", label: "Vendor save",
		},
		{
			name: "vendor delete", mutation: "DELETE /api/vendors/9", success: `{"ok":true}`,
			list: "GET /api/vendors", listBody: `{"items":[]}`,
			run:    func(c *Controller) error { return c.DeleteVendor(ctx, 9) },
			notice: "Vendor deleted.", label: "Vendor delete",
		},
		{
			name: "item save", mutation: "POST /api/vendors/3/items", success: `{"ok":true,"id":12}`,
			list: "GET /api/vendors/3/items", listBody: `{"items":[]}`,
			run: func(c *Controller) error {
				_, err := c.SaveVendorItem(ctx, controlplane.VendorItem{VendorID: 3, Name: "Butter"})
				return err
			},
			notice: "Item saved.", label: "Item save",
		},
		{
			name: "item delete", mutation: "DELETE /api/vendors/items/12", success: `{"ok":true}`,
			list: "GET /api/vendors/3/items", listBody: `{"items":[]}`,
			run:    func(c *Controller) error { return c.DeleteVendorItem(ctx, 3, 12) },
			notice: "Item deleted.", label: "Item delete",
		},
		{
			name: "recipe save", mutation: "PUT /api/recipes/5", success: `{"ok":true}`,
			list: "GET /api/recipes", listBody: `{"recipes":[]}`,
			run: func(c *Controller) error {
				_, err := c.SaveRecipe(ctx, controlplane.Recipe{ID: id(5), Name: "Veal stock"})
				return err
			},
			notice: "Recipe saved.", label: "Recipe save",
		},
		{
			name: "recipe delete", mutation: "DELETE /api/recipes/5", success: `{"ok":true}`,
			list: "GET /api/recipes", listBody: `{"recipes":[]}`,
			run:    func(c *Controller) error { return c.DeleteRecipe(ctx, 5) },
			notice: "Recipe deleted.", label: "Recipe delete",
		},
		{
			name: "prep update", mutation: "POST /api/prep-update", success: `{"ok":true}`,
			list: "GET /api/recipes", listBody: `{"recipes":[]}`,
			run:    func(c *Controller) error { return c.PrepUpdate(ctx, map[int64]float64{5: 2}) },
			notice: "Updated on-hand for 1 recipes.", label: "Prep update",
		},
		{
			name: "session clear", mutation: "DELETE /api/sessions/4/messages", success: `{"deleted":2}`,
			list: "GET /api/sessions", listBody: `{"items":[]}`,
			run: func(c *Controller) error {
				_, err := c.ClearSession(ctx, 4)
				return err
			},
			notice: "Cleared 2 messages.", label: "Session clear",
		},
	}

	outcomes := []struct {
		name       string
		writeOK    bool
		listStatus int
	}{
		{"success", true, http.StatusOK},
		{"rejected", false, http.StatusOK},
		{"refetch fails", true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		for _, oc := range outcomes {
			t.Run(tt.name+"/"+oc.name, func(t *testing.T) {
				write := reply(http.StatusUnprocessableEntity, `{"detail":"rejected by kitchen"}`)
				if oc.writeOK {
					write = ok(tt.success)
				}
				list := ok(tt.listBody)
				if oc.listStatus != http.StatusOK {
					list = reply(oc.listStatus, `{"detail":"list down"}`)
				}
				fp := newFakePlane(t, map[string]http.HandlerFunc{
					tt.mutation: write,
					tt.list:     list,
				})
				c := fp.controller(Options{})

				var banners []string
				unsubscribe := c.Store().Subscribe(func(s state.State) {
					if n := len(banners); s.Banner.Text != "" && (n == 0 || banners[n-1] != s.Banner.Text) {
						banners = append(banners, s.Banner.Text)
					}
				})
				defer unsubscribe()

				err := tt.run(c)
				if oc.writeOK != (err == nil) {
					t.Fatalf("err = %v, want success %v", err, oc.writeOK)
				}

				want := []string{tt.mutation, tt.list}
				if got := fp.recorded(); !slices.Equal(got, want) {
					t.Errorf("calls = %v, want %v", got, want)
				}

				if oc.writeOK {
					assertBanner(t, c, state.BannerNotice, tt.notice)
				} else {
					assertBanner(t, c, state.BannerError, tt.label+" failed: rejected by kitchen")
				}
				if oc.listStatus != http.StatusOK {
					if len(banners) < 2 || !strings.HasSuffix(banners[len(banners)-2], "load failed: list down") {
						t.Errorf("banners = %q, want refetch failure before the outcome", banners)
					}
				}
			})
		}
	}
}
