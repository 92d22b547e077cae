package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prepbrain/prepdeck/internal/sim"
)

const testToken = "test-token-12345"

func setupControlPlane(t *testing.T, token string) (http.Handler, *sim.Sim) {
	t.Helper()
	s := sim.New()
	return NewControlPlaneHandler(ServerDeps{Sim: s, Token: token}), s
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Detail
}

func TestAuth_HealthIsPublic(t *testing.T) {
	h, _ := setupControlPlane(t, testToken)

	rr := serve(h, authReq(http.MethodGet, "/api/health", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/api/status", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rr.Code)
	}
	if got := detail(t, rr); got != "Invalid or missing API token" {
		t.Errorf("detail = %q", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/api/status", "", "wrong"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong token = %d, want 401", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/api/status", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200", rr.Code)
	}
}

func TestAuth_EmptyTokenDisablesCheck(t *testing.T) {
	h, _ := setupControlPlane(t, "")
	rr := serve(h, authReq(http.MethodGet, "/api/status", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestControl_UnknownTargetIs404(t *testing.T) {
	h, _ := setupControlPlane(t, "")
	rr := serve(h, authReq(http.MethodPost, "/api/control/fryer/start", "", ""))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestAutonomyControl_Conflict(t *testing.T) {
	h, _ := setupControlPlane(t, "")
	rr := serve(h, authReq(http.MethodPost, "/api/autonomy/stop", "", ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if got := detail(t, rr); !strings.HasPrefix(got, "Autonomy is always on") {
		t.Errorf("detail = %q", got)
	}
}

func TestLogs_Envelope(t *testing.T) {
	h, _ := setupControlPlane(t, "")
	rr := serve(h, authReq(http.MethodGet, "/api/logs?lines=5&level=all", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Items []map[string]string `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) == 0 || body.Items[0]["raw"] == "" {
		t.Errorf("items = %v", body.Items)
	}

	rr = serve(h, authReq(http.MethodGet, "/api/logs?level=verbose", "", ""))
	if rr.Code != http.StatusBadRequest || detail(t, rr) != "Invalid level filter" {
		t.Errorf("bad level: %d %s", rr.Code, rr.Body.String())
	}
}

func TestVendorItemRoutes(t *testing.T) {
	h, s := setupControlPlane(t, "")
	vendors, err := s.Vendors(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	vid := *vendors[0].ID

	rr := serve(h, authReq(http.MethodPost, "/api/vendors/"+itoa(vid)+"/items", `{"name":"Chervil","unit":"bunch","is_active":true}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		OK bool   `json:"ok"`
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil || created.ID == nil {
		t.Fatalf("create body = %s", rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodPut, "/api/vendors/items/"+itoa(*created.ID), `{"name":"Chervil","unit":"case","is_active":true}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d; body = %s", rr.Code, rr.Body.String())
	}

	items, err := s.VendorItems(t.Context(), vid)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, it := range items {
		if it.Name == "Chervil" {
			found = true
			if it.Unit != "case" || it.VendorID != vid {
				t.Errorf("item = %+v", it)
			}
		}
	}
	if !found {
		t.Error("created item not listed under its vendor")
	}

	rr = serve(h, authReq(http.MethodDelete, "/api/vendors/items/99999", "", ""))
	if rr.Code != http.StatusNotFound || detail(t, rr) != "Item not found" {
		t.Errorf("delete missing: %d %s", rr.Code, rr.Body.String())
	}
}

func TestKnowledgeUpload_Multipart(t *testing.T) {
	h, _ := setupControlPlane(t, "")

	upload := func(name, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", name)
		part.Write([]byte(content))
		mw.WriteField("extract_images", "true")
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/knowledge/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return serve(h, req)
	}

	rr := upload("notes.md", "hello")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := detail(t, rr); got != "Only .pdf, .txt, and .docx files are supported" {
		t.Errorf("detail = %q", got)
	}

	rr = upload("mise_en_place.txt", "brunoise the shallots")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var res map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res["ok"] != true || res["chunks_added"] != float64(1) {
		t.Errorf("result = %v", res)
	}
}

func TestConfig_Envelope(t *testing.T) {
	h, _ := setupControlPlane(t, "")

	rr := serve(h, authReq(http.MethodPut, "/api/config", `{"kitchen":{}}`, ""))
	if rr.Code != http.StatusBadRequest || detail(t, rr) != "Unknown config keys: kitchen" {
		t.Fatalf("unknown key: %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodPut, "/api/config", `{"ollama":{"model":"m"}}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d", rr.Code)
	}
	var body struct {
		OK     bool           `json:"ok"`
		Config map[string]any `json:"config"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || !body.OK {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if body.Config["ollama"].(map[string]any)["model"] != "m" {
		t.Errorf("config = %v", body.Config)
	}
}

func TestFaultInjection_SurfacesDetail(t *testing.T) {
	h, s := setupControlPlane(t, "")
	s.Inject("recipes", sim.Fault{Status: http.StatusInternalServerError, Detail: "database is locked"})

	rr := serve(h, authReq(http.MethodGet, "/api/recipes", "", ""))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := detail(t, rr); got != "database is locked" {
		t.Errorf("detail = %q", got)
	}
}

func TestInvalidPathID(t *testing.T) {
	h, _ := setupControlPlane(t, "")
	rr := serve(h, authReq(http.MethodDelete, "/api/recipes/abc", "", ""))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}
