package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/sim"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadSize = 32 << 20
)

// ServerDeps holds what the control-plane router serves.
type ServerDeps struct {
	Sim    *sim.Sim
	Token  string
	Logger *slog.Logger
}

// NewControlPlaneHandler serves the Prep Brain control-plane API backed by
// the simulator. /api/health is always public.
func NewControlPlaneHandler(deps ServerDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(requestLog(deps.Logger))

	r.Get("/api/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/api/status", handleStatus(deps))
		r.Get("/api/logs", handleLogs(deps))
		r.Post("/api/control/{target}/{action}", handleControl(deps))
		r.Get("/api/system/info", handleSystemInfo(deps))

		r.Get("/api/autonomy/status", handleAutonomy(deps))
		r.Get("/api/autonomy/logs", handleAutonomyLogs(deps))
		r.Post("/api/autonomy/{action}", handleAutonomyControl(deps))

		r.Get("/api/sessions", handleSessions(deps))
		r.Get("/api/sessions/{id}/messages", handleSessionMessages(deps))
		r.Delete("/api/sessions/{id}/messages", handleClearSession(deps))

		r.Get("/api/knowledge", handleKnowledge(deps))
		r.Post("/api/knowledge/upload", handleKnowledgeUpload(deps))
		r.Post("/api/knowledge/{id}/toggle", handleKnowledgeToggle(deps))
		r.Delete("/api/knowledge/{id}", handleKnowledgeDelete(deps))

		r.Get("/api/config", handleConfig(deps))
		r.Put("/api/config", handlePutConfig(deps))

		r.Get("/api/vendors", handleVendors(deps))
		r.Post("/api/vendors", handleSaveVendor(deps))
		r.Put("/api/vendors/{id}", handleSaveVendor(deps))
		r.Delete("/api/vendors/{id}", handleDeleteVendor(deps))
		r.Get("/api/vendors/{id}/items", handleVendorItems(deps))
		r.Post("/api/vendors/{id}/items", handleSaveVendorItem(deps))
		r.Put("/api/vendors/items/{itemID}", handleSaveVendorItem(deps))
		r.Delete("/api/vendors/items/{itemID}", handleDeleteVendorItem(deps))

		r.Get("/api/recipes", handleRecipes(deps))
		r.Post("/api/recipes", handleSaveRecipe(deps))
		r.Put("/api/recipes/{id}", handleSaveRecipe(deps))
		r.Delete("/api/recipes/{id}", handleDeleteRecipe(deps))
		r.Post("/api/prep-update", handlePrepUpdate(deps))

		r.Get("/api/inventory/sheets", handleInventory(deps))
		r.Get("/api/menu-engineering", handleMenu(deps))

		r.Post("/api/test/brain", handleTestBrain(deps))
		r.Post("/api/test/transcribe", handleTranscribe(deps))
		r.Post("/api/composer/draft", handleDraftEmail(deps))
	})

	return r
}

func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("control plane request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", r.Header.Get("X-Request-ID"),
				"duration", time.Since(start),
			)
		})
	}
}

// writeErr maps simulator errors to their status; anything else is a 500.
func writeErr(w http.ResponseWriter, err error) {
	var se *sim.Error
	switch {
	case errors.As(err, &se):
		httpError(w, se.Status, "%s", se.Detail)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpError(w, http.StatusGatewayTimeout, "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "%v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid %s", name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}

// reply writes v, or the error if err is non-nil.
func reply(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func items[T any](list []T) map[string]any {
	if list == nil {
		list = []T{}
	}
	return map[string]any{"items": list}
}

var okBody = map[string]bool{"ok": true}

// --- status, control, system ---

func handleHealth(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Health(r.Context())
		reply(w, out, err)
	}
}

func handleStatus(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Status(r.Context())
		reply(w, out, err)
	}
}

func handleLogs(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Logs(r.Context(), queryInt(r, "lines", 200), r.URL.Query().Get("level"))
		reply(w, items(out), err)
	}
}

func handleControl(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Control(r.Context(), chi.URLParam(r, "target"), chi.URLParam(r, "action"))
		if err == nil {
			deps.Logger.Info("control action", "target", chi.URLParam(r, "target"), "action", chi.URLParam(r, "action"), "changed", out.Changed)
		}
		reply(w, out, err)
	}
}

func handleSystemInfo(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.SystemInfo(r.Context())
		reply(w, out, err)
	}
}

// --- autonomy ---

func handleAutonomy(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Autonomy(r.Context())
		reply(w, out, err)
	}
}

func handleAutonomyLogs(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := max(1, min(queryInt(r, "limit", 50), 500))
		out, err := deps.Sim.AutonomyLogs(r.Context(), limit)
		reply(w, items(out), err)
	}
}

func handleAutonomyControl(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.ControlAutonomy(r.Context(), chi.URLParam(r, "action"))
		reply(w, out, err)
	}
}

// --- sessions ---

func handleSessions(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Sessions(r.Context())
		reply(w, items(out), err)
	}
}

func handleSessionMessages(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		out, err := deps.Sim.SessionMessages(r.Context(), id, queryInt(r, "limit", 50))
		reply(w, items(out), err)
	}
}

func handleClearSession(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		n, err := deps.Sim.ClearSessionMessages(r.Context(), id)
		reply(w, map[string]any{"ok": true, "deleted": n}, err)
	}
}

// --- knowledge ---

func handleKnowledge(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Knowledge(r.Context())
		reply(w, items(out), err)
	}
}

func handleKnowledgeUpload(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, ok := readUpload(w, r)
		if !ok {
			return
		}
		opts := controlplane.UploadOptions{
			ExtractImages:      formBool(r, "extract_images"),
			VisionDescriptions: formBool(r, "vision_descriptions"),
		}
		out, err := deps.Sim.UploadKnowledge(r.Context(), name, data, opts)
		reply(w, out, err)
	}
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart body: %v", err)
		return "", nil, false
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "file is required")
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		httpError(w, http.StatusBadRequest, "reading upload: %v", err)
		return "", nil, false
	}
	return hdr.Filename, data, true
}

func formBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.FormValue(name))
	return v
}

func handleKnowledgeToggle(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Active bool `json:"active"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		err := deps.Sim.ToggleKnowledge(r.Context(), chi.URLParam(r, "id"), body.Active)
		reply(w, okBody, err)
	}
}

func handleKnowledgeDelete(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply(w, okBody, deps.Sim.DeleteKnowledge(r.Context(), chi.URLParam(r, "id")))
	}
}

// --- config ---

func handleConfig(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := deps.Sim.Config(r.Context())
		reply(w, map[string]any{"config": cfg}, err)
	}
}

func handlePutConfig(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg controlplane.ConfigData
		if !decodeBody(w, r, &cfg) {
			return
		}
		saved, err := deps.Sim.PutConfig(r.Context(), cfg)
		reply(w, map[string]any{"ok": true, "config": saved}, err)
	}
}

// --- vendors ---

func handleVendors(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Vendors(r.Context())
		reply(w, items(out), err)
	}
}

// handleSaveVendor serves both POST /api/vendors and PUT /api/vendors/{id};
// the path id wins over any id in the body.
func handleSaveVendor(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v controlplane.Vendor
		if !decodeBody(w, r, &v) {
			return
		}
		v.ID = nil
		if chi.URLParam(r, "id") != "" {
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			v.ID = &id
		}
		out, err := deps.Sim.SaveVendor(r.Context(), v)
		reply(w, out, err)
	}
}

func handleDeleteVendor(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		reply(w, okBody, deps.Sim.DeleteVendor(r.Context(), id))
	}
}

func handleVendorItems(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		out, err := deps.Sim.VendorItems(r.Context(), id)
		reply(w, items(out), err)
	}
}

func handleSaveVendorItem(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var it controlplane.VendorItem
		if !decodeBody(w, r, &it) {
			return
		}
		it.ID = nil
		if chi.URLParam(r, "itemID") != "" {
			id, ok := pathID(w, r, "itemID")
			if !ok {
				return
			}
			it.ID = &id
		} else {
			vendorID, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			it.VendorID = vendorID
		}
		out, err := deps.Sim.SaveVendorItem(r.Context(), it)
		reply(w, out, err)
	}
}

func handleDeleteVendorItem(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "itemID")
		if !ok {
			return
		}
		reply(w, okBody, deps.Sim.DeleteVendorItem(r.Context(), id))
	}
}

// --- recipes, inventory, menu ---

func handleRecipes(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.Recipes(r.Context())
		if out == nil {
			out = []controlplane.Recipe{}
		}
		reply(w, map[string]any{"recipes": out}, err)
	}
}

func handleSaveRecipe(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec controlplane.Recipe
		if !decodeBody(w, r, &rec) {
			return
		}
		rec.ID = nil
		if chi.URLParam(r, "id") != "" {
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			rec.ID = &id
		}
		out, err := deps.Sim.SaveRecipe(r.Context(), rec)
		reply(w, out, err)
	}
}

func handleDeleteRecipe(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		reply(w, okBody, deps.Sim.DeleteRecipe(r.Context(), id))
	}
}

func handlePrepUpdate(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]float64
		if !decodeBody(w, r, &body) {
			return
		}
		n, err := deps.Sim.PrepUpdate(r.Context(), body)
		reply(w, map[string]any{"ok": true, "updated": n}, err)
	}
}

func handleInventory(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.InventorySheets(r.Context())
		reply(w, items(out), err)
	}
}

func handleMenu(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Sim.MenuEngineering(r.Context())
		reply(w, out, err)
	}
}

// --- test lab & composer ---

func handleTestBrain(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		answer, err := deps.Sim.TestBrain(r.Context(), body.Prompt)
		reply(w, map[string]string{"answer": answer}, err)
	}
}

func handleTranscribe(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, ok := readUpload(w, r)
		if !ok {
			return
		}
		text, err := deps.Sim.Transcribe(r.Context(), name, data)
		reply(w, map[string]string{"text": text}, err)
	}
}

func handleDraftEmail(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			VendorID int64  `json:"vendor_id"`
			Context  string `json:"context"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		out, err := deps.Sim.DraftEmail(r.Context(), body.VendorID, body.Context)
		reply(w, out, err)
	}
}
