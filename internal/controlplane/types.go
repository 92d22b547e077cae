package controlplane

// StatusSnapshot is the payload of GET /api/status. It is always replaced
// wholesale by callers; there is no merge semantics.
type StatusSnapshot struct {
	Bot           BotStatus    `json:"bot"`
	Ollama        OllamaStatus `json:"ollama"`
	Telemetry     Telemetry    `json:"telemetry"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Processing    bool         `json:"processing"`
}

type BotStatus struct {
	Status            string `json:"status"`
	Running           bool   `json:"running"`
	PID               *int   `json:"pid"`
	ManagedExternally bool   `json:"managed_externally,omitempty"`
}

type OllamaStatus struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	PIDs    []int  `json:"pids"`
}

type Telemetry struct {
	Battery           *int     `json:"battery"`
	CoreTemp          *float64 `json:"core_temp"`
	CoreTempEstimated bool     `json:"core_temp_estimated"`
	Signal            int      `json:"signal"`
	Position          string   `json:"position"`
}

type LogEntry struct {
	TS      string `json:"ts"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

// LogLevel filters GET /api/logs.
type LogLevel string

const (
	LogAll      LogLevel = "all"
	LogWarnings LogLevel = "warnings"
	LogErrors   LogLevel = "errors"
)

type Session struct {
	ID           int64  `json:"id"`
	Title        string `json:"title,omitempty"`
	DisplayName  string `json:"display_name"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	IsActive     bool   `json:"is_active"`
}

type SessionMessage struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type KnowledgeSource struct {
	ID               string   `json:"id"`
	SourceID         *string  `json:"source_id"`
	IngestID         string   `json:"ingest_id"`
	SourceName       string   `json:"source_name"`
	Title            string   `json:"title"`
	Type             string   `json:"type"`
	KnowledgeTier    string   `json:"knowledge_tier,omitempty"`
	DateIngested     string   `json:"date_ingested"`
	ChunkCount       int      `json:"chunk_count"`
	Status           string   `json:"status"`
	Warnings         []string `json:"warnings"`
	OCRRequired      bool     `json:"ocr_required"`
	OCRApplied       bool     `json:"ocr_applied"`
	ImageRich        bool     `json:"image_rich"`
	TextProfileLabel string   `json:"text_profile_label"`
	CanToggle        bool     `json:"can_toggle"`
	CanDelete        bool     `json:"can_delete"`
}

// Active reports whether the source currently participates in retrieval.
func (k KnowledgeSource) Active() bool { return k.Status == "active" }

// UploadOptions are the multipart form flags sent with a knowledge upload.
type UploadOptions struct {
	ExtractImages      bool
	VisionDescriptions bool
}

// IngestResult is whatever the server returned for an upload; its shape
// depends on the ingestion pipeline, so it is kept raw.
type IngestResult map[string]any

// ConfigData is the server's configuration document. Keys the console does
// not know about must survive a round trip.
type ConfigData map[string]any

// Vendor, VendorItem and Recipe use a nil ID to mean "not yet created".

type Vendor struct {
	ID              *int64 `json:"id,omitempty"`
	Name            string `json:"name"`
	ContactName     string `json:"contact_name,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	OrderingWindow  string `json:"ordering_window,omitempty"`
	CutoffTime      string `json:"cutoff_time,omitempty"`
	PreferredMethod string `json:"preferred_method,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type VendorItem struct {
	ID       *int64   `json:"id,omitempty"`
	VendorID int64    `json:"vendor_id"`
	Name     string   `json:"name"`
	ItemCode string   `json:"item_code,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Category string   `json:"category,omitempty"`
	IsActive bool     `json:"is_active"`
}

type Recipe struct {
	ID               *int64  `json:"id,omitempty"`
	Name             string  `json:"name"`
	YieldAmount      float64 `json:"yield_amount,omitempty"`
	YieldUnit        string  `json:"yield_unit,omitempty"`
	Ingredients      string  `json:"ingredients,omitempty"`
	Instructions     string  `json:"instructions,omitempty"`
	IsActive         bool    `json:"is_active"`
	SalesPrice       float64 `json:"sales_price"`
	RecentSalesCount int     `json:"recent_sales_count"`
	ParLevel         float64 `json:"par_level"`
	OnHand           float64 `json:"on_hand"`
	EstimatedCost    float64 `json:"estimated_cost,omitempty"`
}

type InventoryItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

type MenuItem struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Cost           float64 `json:"cost"`
	Price          float64 `json:"price"`
	Margin         float64 `json:"margin"`
	Count          int     `json:"count"`
	MarginPC       float64 `json:"margin_pc"`
	Classification string  `json:"classification"`
}

type MenuAverages struct {
	Margin float64 `json:"margin"`
	Count  float64 `json:"count"`
}

type MenuEngineering struct {
	Items    []MenuItem   `json:"items"`
	Averages MenuAverages `json:"averages"`
}

type AutonomyStatus struct {
	Status                 string `json:"status"`
	Running                bool   `json:"running"`
	IsAlwaysOn             bool   `json:"is_always_on"`
	LastTickAt             string `json:"last_tick_at,omitempty"`
	LastAction             string `json:"last_action,omitempty"`
	LastError              string `json:"last_error,omitempty"`
	LastErrorAt            string `json:"last_error_at,omitempty"`
	QueuePendingDrafts     int    `json:"queue_pending_drafts"`
	QueuePendingIngests    int    `json:"queue_pending_ingests"`
	LastPromotedRecipeName string `json:"last_promoted_recipe_name,omitempty"`
	ErrorCount             int    `json:"error_count"`
}

type AutonomyLogEntry struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

type SystemInfo struct {
	RuntimeVersion string `json:"python_version"`
	Platform       string `json:"platform"`
	APIStartedAt   int64  `json:"api_started_at"`
	CWD            string `json:"cwd"`
}

type EmailDraft struct {
	VendorEmail string `json:"vendor_email"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// ControlResult is the reply of every /api/control/* call.
type ControlResult struct {
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}
