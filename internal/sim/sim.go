// Package sim is an in-memory Prep Brain control plane. It keeps the same
// observable behaviour as the real service closely enough for offline use
// and integration tests, and can inject faults per operation.
package sim

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// Error is an application error with the HTTP status the API should use.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return e.Detail }

func errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// Fault makes the next Times calls of an operation fail with Status/Detail
// after Delay. A zero Status only delays. Times <= 0 means every call.
type Fault struct {
	Status int
	Detail string
	Delay  time.Duration
	Times  int
}

// Sim is safe for concurrent use.
type Sim struct {
	mu  sync.Mutex
	now func() time.Time

	startedAt time.Time

	botRunning        bool
	botPID            int
	nextPID           int
	managedExternally bool
	ollamaRunning     bool

	logLines    []string
	sessions    []*session
	knowledge   []controlplane.KnowledgeSource
	config      map[string]any
	vendors     map[int64]controlplane.Vendor
	items       map[int64]controlplane.VendorItem
	recipes     map[int64]controlplane.Recipe
	autonomyLog []controlplane.AutonomyLogEntry
	nextID      int64

	faults map[string]*Fault
}

type session struct {
	controlplane.Session
	messages []controlplane.SessionMessage
}

// Option configures a Sim.
type Option func(*Sim)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sim) { s.now = now }
}

// ManagedExternally makes bot control report that the bot is owned by the
// container runtime, as the real service does when bot control is off.
func ManagedExternally() Option {
	return func(s *Sim) { s.managedExternally = true }
}

// Empty returns a simulator with default config and no data.
func Empty(opts ...Option) *Sim {
	s := &Sim{
		now:     time.Now,
		nextPID: 4100,
		config:  defaultConfig(),
		vendors: map[int64]controlplane.Vendor{},
		items:   map[int64]controlplane.VendorItem{},
		recipes: map[int64]controlplane.Recipe{},
		faults:  map[string]*Fault{},
	}
	for _, o := range opts {
		o(s)
	}
	s.startedAt = s.now()
	return s
}

// New returns a simulator seeded with a small kitchen.
func New(opts ...Option) *Sim {
	s := Empty(opts...)
	s.seed()
	return s
}

// Inject installs a fault for op, e.g. "status" or "control.bot.restart".
func (s *Sim) Inject(op string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc := f
	s.faults[op] = &fc
}

// ClearFaults removes every injected fault.
func (s *Sim) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[string]*Fault{}
}

// fault applies any fault for op. It must be called without s.mu held.
func (s *Sim) fault(ctx context.Context, op string) error {
	s.mu.Lock()
	f, ok := s.faults[op]
	var active Fault
	if ok {
		active = *f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(s.faults, op)
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if active.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(active.Delay):
		}
	}
	if active.Status == 0 {
		return nil
	}
	return &Error{Status: active.Status, Detail: active.Detail}
}

func (s *Sim) allocID() int64 {
	s.nextID++
	return s.nextID
}

// logf appends a line in the bot's log format: "ts - logger - LEVEL - msg".
func (s *Sim) logf(level, logger, format string, args ...any) {
	ts := s.now().Format("2006-01-02 15:04:05,000")
	s.logLines = append(s.logLines, fmt.Sprintf("%s - %s - %s - %s", ts, logger, level, fmt.Sprintf(format, args...)))
}

// --- health, status & telemetry ---

func (s *Sim) Health(ctx context.Context) (map[string]any, error) {
	if err := s.fault(ctx, "health"); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "started_at": s.startedAt.Unix()}, nil
}

func (s *Sim) Status(ctx context.Context) (controlplane.StatusSnapshot, error) {
	if err := s.fault(ctx, "status"); err != nil {
		return controlplane.StatusSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return controlplane.StatusSnapshot{
		Bot:           s.botStatusLocked(),
		Ollama:        s.ollamaStatusLocked(),
		Telemetry:     s.telemetryLocked(),
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
		Processing:    s.botRunning,
	}, nil
}

func (s *Sim) botStatusLocked() controlplane.BotStatus {
	if s.managedExternally {
		st := controlplane.BotStatus{Status: "Stopped", Running: s.botRunning, ManagedExternally: true}
		if s.botRunning {
			st.Status = "Running"
		}
		return st
	}
	if !s.botRunning {
		return controlplane.BotStatus{Status: "Stopped"}
	}
	pid := s.botPID
	return controlplane.BotStatus{Status: "Running", Running: true, PID: &pid}
}

func (s *Sim) ollamaStatusLocked() controlplane.OllamaStatus {
	if s.ollamaRunning {
		return controlplane.OllamaStatus{Status: "Running (Host)", Running: true, PIDs: []int{}}
	}
	return controlplane.OllamaStatus{Status: "Stopped/Unreachable", PIDs: []int{}}
}

func (s *Sim) telemetryLocked() controlplane.Telemetry {
	signal := 39
	switch {
	case s.botRunning && s.ollamaRunning:
		signal = 98
	case s.botRunning || s.ollamaRunning:
		signal = 74
	}
	// No host sensors here: estimate core temperature from load like the
	// service does on machines without them.
	load := 12.0
	if s.ollamaRunning {
		load += 30
	}
	if s.botRunning {
		load += 8
	}
	temp := float64(int((36.0+load*0.42)*10)) / 10
	battery := 87

	position := "KITCHEN A2"
	if rt, ok := s.config["runtime"].(map[string]any); ok {
		if p, ok := rt["position_label"].(string); ok && p != "" {
			position = p
		}
	}
	return controlplane.Telemetry{
		Battery:           &battery,
		CoreTemp:          &temp,
		CoreTempEstimated: true,
		Signal:            signal,
		Position:          position,
	}
}

// --- control ---

func (s *Sim) Control(ctx context.Context, target, action string) (controlplane.ControlResult, error) {
	if err := s.fault(ctx, "control."+target+"."+action); err != nil {
		return controlplane.ControlResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch target + "/" + action {
	case "bot/start":
		return s.startBotLocked(), nil
	case "bot/stop":
		return s.stopBotLocked(), nil
	case "bot/restart":
		if s.managedExternally {
			return controlplane.ControlResult{Message: "Bot is managed by container startup."}, nil
		}
		s.stopBotLocked()
		return s.startBotLocked(), nil
	case "ollama/start":
		if s.ollamaRunning {
			return controlplane.ControlResult{Message: "Ollama is running on host."}, nil
		}
		s.ollamaRunning = true
		s.logf("INFO", "services.ollama", "Ollama started")
		return controlplane.ControlResult{Changed: true, Message: "Ollama started."}, nil
	case "ollama/stop":
		if !s.ollamaRunning {
			return controlplane.ControlResult{Message: "Ollama was not running."}, nil
		}
		s.ollamaRunning = false
		s.logf("WARNING", "services.ollama", "Ollama stopped by operator")
		return controlplane.ControlResult{Changed: true, Message: "Ollama stopped."}, nil
	}
	return controlplane.ControlResult{}, errorf(http.StatusNotFound, "Not Found")
}

func (s *Sim) startBotLocked() controlplane.ControlResult {
	if s.managedExternally {
		return controlplane.ControlResult{Message: "Bot is managed by container startup."}
	}
	if s.botRunning {
		return controlplane.ControlResult{Message: "Bot already running."}
	}
	s.nextPID++
	s.botRunning = true
	s.botPID = s.nextPID
	s.logf("INFO", "prep_brain.app", "Bot started (pid %d)", s.botPID)
	s.autonomyLogLocked("heartbeat", "autonomy loop attached to bot runtime")
	return controlplane.ControlResult{Changed: true, Message: "Bot start command sent."}
}

func (s *Sim) stopBotLocked() controlplane.ControlResult {
	if s.managedExternally {
		return controlplane.ControlResult{Message: "Bot is managed by container startup."}
	}
	if !s.botRunning {
		return controlplane.ControlResult{Message: "Bot was not running."}
	}
	s.logf("INFO", "prep_brain.app", "Bot stopped (pid %d)", s.botPID)
	s.botRunning = false
	s.botPID = 0
	return controlplane.ControlResult{Changed: true, Message: "Bot stop command sent."}
}

// --- logs ---

// Logs returns the last lines of the bot log, newest first. level is one of
// all, warnings or errors.
func (s *Sim) Logs(ctx context.Context, lines int, level string) ([]controlplane.LogEntry, error) {
	if err := s.fault(ctx, "logs"); err != nil {
		return nil, err
	}
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "all"
	}
	if level != "all" && level != "errors" && level != "warnings" {
		return nil, errorf(http.StatusBadRequest, "Invalid level filter")
	}
	lines = max(1, min(lines, 1000))

	s.mu.Lock()
	rows := s.logLines
	if len(rows) > lines {
		rows = rows[len(rows)-lines:]
	}
	rows = append([]string(nil), rows...)
	s.mu.Unlock()

	out := make([]controlplane.LogEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		upper := strings.ToUpper(rows[i])
		if level == "errors" && !strings.Contains(upper, "ERROR") {
			continue
		}
		if level == "warnings" && !strings.Contains(upper, "WARNING") {
			continue
		}
		out = append(out, ParseLogLine(rows[i]))
	}
	return out, nil
}

// ParseLogLine splits "ts - logger - LEVEL - message". Lines in any other
// shape keep their full text as the message.
func ParseLogLine(raw string) controlplane.LogEntry {
	line := strings.TrimSpace(raw)
	if line == "" {
		return controlplane.LogEntry{}
	}
	parts := strings.Split(line, " - ")
	if len(parts) >= 4 {
		return controlplane.LogEntry{
			TS:      strings.TrimSpace(parts[0]),
			Message: strings.TrimSpace(parts[3]),
			Raw:     line,
		}
	}
	return controlplane.LogEntry{Message: line, Raw: line}
}

// AppendLog adds a raw line to the bot log.
func (s *Sim) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLines = append(s.logLines, line)
}

// --- autonomy ---

func (s *Sim) autonomyLogLocked(action, detail string) {
	s.autonomyLog = append(s.autonomyLog, controlplane.AutonomyLogEntry{
		ID:        int64(len(s.autonomyLog) + 1),
		Action:    action,
		Detail:    detail,
		CreatedAt: s.now().UTC().Format("2006-01-02 15:04:05"),
	})
}

func (s *Sim) Autonomy(ctx context.Context) (controlplane.AutonomyStatus, error) {
	if err := s.fault(ctx, "autonomy.status"); err != nil {
		return controlplane.AutonomyStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := controlplane.AutonomyStatus{
		Status:     "Waiting for heartbeat",
		Running:    s.botRunning,
		IsAlwaysOn: true,
	}
	if s.botRunning {
		st.Status = "Running"
	}
	for _, e := range s.autonomyLog {
		if strings.Contains(e.Action, "error") {
			st.ErrorCount++
			st.LastError = e.Detail
			st.LastErrorAt = e.CreatedAt
		}
	}
	if n := len(s.autonomyLog); n > 0 {
		last := s.autonomyLog[n-1]
		st.LastTickAt = last.CreatedAt
		st.LastAction = last.Action
	}
	return st, nil
}

// ControlAutonomy always refuses: autonomy follows the bot's lifecycle.
func (s *Sim) ControlAutonomy(ctx context.Context, action string) (controlplane.ControlResult, error) {
	if err := s.fault(ctx, "autonomy."+action); err != nil {
		return controlplane.ControlResult{}, err
	}
	switch action {
	case "start":
		return controlplane.ControlResult{}, errorf(http.StatusConflict,
			"Autonomy is managed by bot startup and cannot be started manually.")
	case "stop":
		return controlplane.ControlResult{}, errorf(http.StatusConflict,
			"Autonomy is always on while the bot is running and cannot be stopped from the dashboard.")
	}
	return controlplane.ControlResult{}, errorf(http.StatusNotFound, "Not Found")
}

// AutonomyLogs returns the newest limit entries, newest first.
func (s *Sim) AutonomyLogs(ctx context.Context, limit int) ([]controlplane.AutonomyLogEntry, error) {
	if err := s.fault(ctx, "autonomy.logs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]controlplane.AutonomyLogEntry, 0, min(limit, len(s.autonomyLog)))
	for i := len(s.autonomyLog) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.autonomyLog[i])
	}
	return out, nil
}

// --- system ---

func (s *Sim) SystemInfo(ctx context.Context) (controlplane.SystemInfo, error) {
	if err := s.fault(ctx, "system.info"); err != nil {
		return controlplane.SystemInfo{}, err
	}
	return controlplane.SystemInfo{
		RuntimeVersion: strings.TrimPrefix(runtime.Version(), "go"),
		Platform:       runtime.GOOS + "-" + runtime.GOARCH,
		APIStartedAt:   s.startedAt.Unix(),
		CWD:            "/srv/prep-brain",
	}, nil
}
