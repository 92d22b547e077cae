// Package dashboard drives the console: it loads control-plane data into the
// state store and runs operator commands against the control plane.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/journal"
	"github.com/prepbrain/prepdeck/internal/state"
)

// Journal records command outcomes.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Options tune a Controller. Zero values select defaults.
type Options struct {
	LogLines         int
	LogLevel         controlplane.LogLevel
	MessageLimit     int
	AutonomyLogLimit int
	// StopTimeout bounds the background emergency stop call.
	StopTimeout time.Duration

	Journal Journal
	Logger  *slog.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LogLines <= 0 {
		o.LogLines = state.MaxLocalLogs
	}
	if o.LogLevel == "" {
		o.LogLevel = controlplane.LogAll
	}
	if o.MessageLimit <= 0 {
		o.MessageLimit = 10
	}
	if o.AutonomyLogLimit <= 0 {
		o.AutonomyLogLimit = 50
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Controller owns the state store and is the only writer to it.
type Controller struct {
	client *controlplane.Client
	store  *state.Store
	opts   Options
	logger *slog.Logger

	bg sync.WaitGroup
}

// New returns a Controller. A nil store gets a fresh one.
func New(client *controlplane.Client, store *state.Store, opts Options) *Controller {
	if store == nil {
		store = state.NewStore()
	}
	opts = opts.withDefaults()
	return &Controller{
		client: client,
		store:  store,
		opts:   opts,
		logger: opts.Logger,
	}
}

func (c *Controller) Store() *state.Store { return c.store }

func (c *Controller) Client() *controlplane.Client { return c.client }

func (c *Controller) Snapshot() state.State { return c.store.Snapshot() }

// Wait blocks until every background command has finished.
func (c *Controller) Wait() { c.bg.Wait() }

// ClearBanner dismisses the current notice or error.
func (c *Controller) ClearBanner() { c.store.Dispatch(state.ClearBanner{}) }

func (c *Controller) notify(text string) {
	c.store.Dispatch(state.SetNotice{Text: text})
	c.localLog("INFO", text)
}

func (c *Controller) fail(text string) {
	c.store.Dispatch(state.SetError{Text: text})
	c.localLog("ERROR", text)
}

func (c *Controller) localLog(level, text string) {
	ts := c.opts.Now().Format("2006-01-02 15:04:05")
	c.store.Dispatch(state.AppendLocalLog{Entry: controlplane.LogEntry{
		TS:      ts,
		Message: text,
		Raw:     ts + " - console - " + level + " - " + text,
	}})
}

func (c *Controller) record(ctx context.Context, kind CommandKind, command string, err error, msg string) {
	if c.opts.Journal == nil {
		return
	}
	e := journal.Entry{
		Kind:    kind.String(),
		Command: command,
		OK:      err == nil,
		Message: msg,
	}
	if _, jerr := c.opts.Journal.Record(context.WithoutCancel(ctx), e); jerr != nil {
		c.logger.Warn("journal write failed", "command", command, "error", jerr)
	}
}
