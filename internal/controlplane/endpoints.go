package controlplane

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
)

type itemsEnvelope[T any] struct {
	Items []T `json:"items"`
}

// SaveResult is returned by entity create/update calls. ID is only set on create.
type SaveResult struct {
	OK bool   `json:"ok"`
	ID *int64 `json:"id,omitempty"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/api/health", nil)
}

func (c *Client) Status(ctx context.Context) (StatusSnapshot, error) {
	var s StatusSnapshot
	err := c.get(ctx, "/api/status", &s)
	return s, err
}

func (c *Client) Logs(ctx context.Context, lines int, level LogLevel) ([]LogEntry, error) {
	if level == "" {
		level = LogAll
	}
	q := url.Values{}
	q.Set("lines", strconv.Itoa(lines))
	q.Set("level", string(level))
	var env itemsEnvelope[LogEntry]
	err := c.get(ctx, "/api/logs?"+q.Encode(), &env)
	return env.Items, err
}

// --- sessions ---

func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var env itemsEnvelope[Session]
	err := c.get(ctx, "/api/sessions", &env)
	return env.Items, err
}

func (c *Client) SessionMessages(ctx context.Context, sessionID int64, limit int) ([]SessionMessage, error) {
	var env itemsEnvelope[SessionMessage]
	err := c.get(ctx, fmt.Sprintf("/api/sessions/%d/messages?limit=%d", sessionID, limit), &env)
	return env.Items, err
}

// ClearSessionMessages deletes every message of a session and returns how many were removed.
func (c *Client) ClearSessionMessages(ctx context.Context, sessionID int64) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := c.delete(ctx, fmt.Sprintf("/api/sessions/%d/messages", sessionID), &out)
	return out.Deleted, err
}

// --- knowledge ---

func (c *Client) Knowledge(ctx context.Context) ([]KnowledgeSource, error) {
	var env itemsEnvelope[KnowledgeSource]
	err := c.get(ctx, "/api/knowledge", &env)
	return env.Items, err
}

func (c *Client) ToggleKnowledge(ctx context.Context, id string, active bool) error {
	return c.post(ctx, "/api/knowledge/"+url.PathEscape(id)+"/toggle", map[string]bool{"active": active}, nil)
}

func (c *Client) DeleteKnowledge(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/knowledge/"+url.PathEscape(id), nil)
}

func (c *Client) UploadKnowledge(ctx context.Context, filename string, file io.Reader, opts UploadOptions) (IngestResult, error) {
	fields := map[string]string{
		"extract_images":      strconv.FormatBool(opts.ExtractImages),
		"vision_descriptions": strconv.FormatBool(opts.VisionDescriptions),
	}
	resp, err := c.doMultipart(ctx, "/api/knowledge/upload", "file", filename, file, fields)
	if err != nil {
		return nil, err
	}
	var out IngestResult
	err = decodeJSON(resp, &out)
	return out, err
}

// --- config ---

func (c *Client) Config(ctx context.Context) (ConfigData, error) {
	var out struct {
		Config ConfigData `json:"config"`
	}
	err := c.get(ctx, "/api/config", &out)
	return out.Config, err
}

// PutConfig replaces the server config and returns what the server stored.
func (c *Client) PutConfig(ctx context.Context, cfg ConfigData) (ConfigData, error) {
	var out struct {
		Config ConfigData `json:"config"`
	}
	err := c.put(ctx, "/api/config", cfg, &out)
	return out.Config, err
}

// --- control ---

// Control targets accepted by /api/control.
const (
	TargetBot    = "bot"
	TargetOllama = "ollama"
)

func (c *Client) Control(ctx context.Context, target, action string) (ControlResult, error) {
	var out ControlResult
	err := c.post(ctx, "/api/control/"+target+"/"+action, nil, &out)
	return out, err
}

// --- autonomy ---

func (c *Client) Autonomy(ctx context.Context) (AutonomyStatus, error) {
	var out AutonomyStatus
	err := c.get(ctx, "/api/autonomy/status", &out)
	return out, err
}

func (c *Client) AutonomyLogs(ctx context.Context, limit int) ([]AutonomyLogEntry, error) {
	var env itemsEnvelope[AutonomyLogEntry]
	err := c.get(ctx, fmt.Sprintf("/api/autonomy/logs?limit=%d", limit), &env)
	return env.Items, err
}

func (c *Client) ControlAutonomy(ctx context.Context, action string) (ControlResult, error) {
	var out ControlResult
	err := c.post(ctx, "/api/autonomy/"+action, nil, &out)
	return out, err
}

// --- vendors ---

func (c *Client) Vendors(ctx context.Context) ([]Vendor, error) {
	var env itemsEnvelope[Vendor]
	err := c.get(ctx, "/api/vendors", &env)
	return env.Items, err
}

// SaveVendor creates the vendor when v.ID is nil and updates it otherwise.
func (c *Client) SaveVendor(ctx context.Context, v Vendor) (SaveResult, error) {
	var out SaveResult
	if v.ID == nil {
		err := c.post(ctx, "/api/vendors", v, &out)
		return out, err
	}
	err := c.put(ctx, fmt.Sprintf("/api/vendors/%d", *v.ID), v, &out)
	return out, err
}

func (c *Client) DeleteVendor(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/vendors/%d", id), nil)
}

func (c *Client) VendorItems(ctx context.Context, vendorID int64) ([]VendorItem, error) {
	var env itemsEnvelope[VendorItem]
	err := c.get(ctx, fmt.Sprintf("/api/vendors/%d/items", vendorID), &env)
	return env.Items, err
}

// SaveVendorItem creates the item under its vendor when item.ID is nil and
// updates it otherwise.
func (c *Client) SaveVendorItem(ctx context.Context, item VendorItem) (SaveResult, error) {
	var out SaveResult
	if item.ID == nil {
		err := c.post(ctx, fmt.Sprintf("/api/vendors/%d/items", item.VendorID), item, &out)
		return out, err
	}
	err := c.put(ctx, fmt.Sprintf("/api/vendors/items/%d", *item.ID), item, &out)
	return out, err
}

func (c *Client) DeleteVendorItem(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/vendors/items/%d", id), nil)
}

// --- recipes ---

func (c *Client) Recipes(ctx context.Context) ([]Recipe, error) {
	var out struct {
		Recipes []Recipe `json:"recipes"`
	}
	err := c.get(ctx, "/api/recipes", &out)
	return out.Recipes, err
}

// SaveRecipe creates the recipe when r.ID is nil and updates it otherwise.
func (c *Client) SaveRecipe(ctx context.Context, r Recipe) (SaveResult, error) {
	var out SaveResult
	if r.ID == nil {
		err := c.post(ctx, "/api/recipes", r, &out)
		return out, err
	}
	err := c.put(ctx, fmt.Sprintf("/api/recipes/%d", *r.ID), r, &out)
	return out, err
}

func (c *Client) DeleteRecipe(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/recipes/%d", id), nil)
}

// --- inventory & menu ---

func (c *Client) InventorySheets(ctx context.Context) ([]InventoryItem, error) {
	var env itemsEnvelope[InventoryItem]
	err := c.get(ctx, "/api/inventory/sheets", &env)
	return env.Items, err
}

// PrepUpdate sets on-hand quantities keyed by recipe id.
func (c *Client) PrepUpdate(ctx context.Context, onHand map[int64]float64) error {
	body := make(map[string]float64, len(onHand))
	for id, qty := range onHand {
		body[strconv.FormatInt(id, 10)] = qty
	}
	return c.post(ctx, "/api/prep-update", body, nil)
}

func (c *Client) MenuEngineering(ctx context.Context) (MenuEngineering, error) {
	var out MenuEngineering
	err := c.get(ctx, "/api/menu-engineering", &out)
	return out, err
}

// --- test lab, composer, system ---

func (c *Client) TestBrain(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	err := c.post(ctx, "/api/test/brain", map[string]string{"prompt": prompt}, &out)
	return out.Answer, err
}

func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := c.doMultipart(ctx, "/api/test/transcribe", "file", filename, audio, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	err = decodeJSON(resp, &out)
	return out.Text, err
}

func (c *Client) DraftEmail(ctx context.Context, vendorID int64, brief string) (EmailDraft, error) {
	var out EmailDraft
	err := c.post(ctx, "/api/composer/draft", map[string]any{"vendor_id": vendorID, "context": brief}, &out)
	return out, err
}

func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var out SystemInfo
	err := c.get(ctx, "/api/system/info", &out)
	return out, err
}
