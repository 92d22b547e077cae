package dashboard

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/state"
)

// load fetches one domain and replaces its slice of state. Failures land in
// the banner as "<label> load failed: <msg>". Responses overtaken by a newer
// request for the same domain are dropped, errors included.
func load[T any](ctx context.Context, c *Controller, d state.Domain, label string,
	fetch func(context.Context) (T, error), replace func(T, time.Time) state.Action) error {

	gen := c.store.Begin(d)
	v, err := fetch(ctx)
	if err != nil {
		if c.store.Commit(d, gen, state.SetError{Text: label + " load failed: " + Message(err)}) {
			c.logger.Warn("load failed", "domain", d, "error", err)
		}
		return err
	}
	c.store.Commit(d, gen, replace(v, c.opts.Now()))
	return nil
}

func (c *Controller) LoadStatus(ctx context.Context) error {
	return load(ctx, c, state.DomainStatus, "Status", c.client.Status,
		func(s controlplane.StatusSnapshot, at time.Time) state.Action {
			return state.ReplaceStatus{Snapshot: s, At: at}
		})
}

func (c *Controller) LoadLogs(ctx context.Context) error {
	fetch := func(ctx context.Context) ([]controlplane.LogEntry, error) {
		return c.client.Logs(ctx, c.opts.LogLines, c.opts.LogLevel)
	}
	return load(ctx, c, state.DomainLogs, "Logs", fetch,
		func(e []controlplane.LogEntry, at time.Time) state.Action {
			return state.ReplaceLogs{Entries: e, At: at}
		})
}

func (c *Controller) LoadSessions(ctx context.Context) error {
	return load(ctx, c, state.DomainSessions, "Sessions", c.client.Sessions,
		func(s []controlplane.Session, at time.Time) state.Action {
			return state.ReplaceSessions{Sessions: s, At: at}
		})
}

// LoadMessages fetches the selected session's messages. It is a no-op with
// no session selected.
func (c *Controller) LoadMessages(ctx context.Context) error {
	sel := c.store.Snapshot().SelectedSession
	if sel == nil {
		return nil
	}
	id := *sel
	fetch := func(ctx context.Context) ([]controlplane.SessionMessage, error) {
		return c.client.SessionMessages(ctx, id, c.opts.MessageLimit)
	}
	return load(ctx, c, state.DomainMessages, "Messages", fetch,
		func(m []controlplane.SessionMessage, at time.Time) state.Action {
			return state.ReplaceMessages{SessionID: id, Messages: m, At: at}
		})
}

func (c *Controller) LoadKnowledge(ctx context.Context) error {
	return load(ctx, c, state.DomainKnowledge, "Knowledge", c.client.Knowledge,
		func(k []controlplane.KnowledgeSource, at time.Time) state.Action {
			return state.ReplaceKnowledge{Sources: k, At: at}
		})
}

func (c *Controller) LoadConfig(ctx context.Context) error {
	return load(ctx, c, state.DomainConfig, "Config", c.client.Config,
		func(d controlplane.ConfigData, at time.Time) state.Action {
			return state.ReplaceConfig{Data: d, At: at}
		})
}

func (c *Controller) LoadVendors(ctx context.Context) error {
	return load(ctx, c, state.DomainVendors, "Vendors", c.client.Vendors,
		func(v []controlplane.Vendor, at time.Time) state.Action {
			return state.ReplaceVendors{Vendors: v, At: at}
		})
}

// LoadVendorItems fetches the selected vendor's catalogue. It is a no-op
// with no vendor selected.
func (c *Controller) LoadVendorItems(ctx context.Context) error {
	sel := c.store.Snapshot().SelectedVendor
	if sel == nil {
		return nil
	}
	id := *sel
	fetch := func(ctx context.Context) ([]controlplane.VendorItem, error) {
		return c.client.VendorItems(ctx, id)
	}
	return load(ctx, c, state.DomainVendorItems, "Vendor items", fetch,
		func(items []controlplane.VendorItem, at time.Time) state.Action {
			return state.ReplaceVendorItems{VendorID: id, Items: items, At: at}
		})
}

func (c *Controller) LoadRecipes(ctx context.Context) error {
	return load(ctx, c, state.DomainRecipes, "Recipes", c.client.Recipes,
		func(r []controlplane.Recipe, at time.Time) state.Action {
			return state.ReplaceRecipes{Recipes: r, At: at}
		})
}

func (c *Controller) LoadInventory(ctx context.Context) error {
	return load(ctx, c, state.DomainInventory, "Inventory", c.client.InventorySheets,
		func(items []controlplane.InventoryItem, at time.Time) state.Action {
			return state.ReplaceInventory{Items: items, At: at}
		})
}

func (c *Controller) LoadMenu(ctx context.Context) error {
	return load(ctx, c, state.DomainMenu, "Menu", c.client.MenuEngineering,
		func(m controlplane.MenuEngineering, at time.Time) state.Action {
			return state.ReplaceMenu{Menu: m, At: at}
		})
}

// LoadAutonomy fetches the autonomy status and its recent log.
func (c *Controller) LoadAutonomy(ctx context.Context) error {
	statusErr := load(ctx, c, state.DomainAutonomy, "Autonomy", c.client.Autonomy,
		func(s controlplane.AutonomyStatus, at time.Time) state.Action {
			return state.ReplaceAutonomy{Status: s, At: at}
		})
	fetch := func(ctx context.Context) ([]controlplane.AutonomyLogEntry, error) {
		return c.client.AutonomyLogs(ctx, c.opts.AutonomyLogLimit)
	}
	logsErr := load(ctx, c, state.DomainAutonomyLogs, "Autonomy logs", fetch,
		func(e []controlplane.AutonomyLogEntry, at time.Time) state.Action {
			return state.ReplaceAutonomyLogs{Entries: e, At: at}
		})
	return errors.Join(statusErr, logsErr)
}

func (c *Controller) LoadSystem(ctx context.Context) error {
	return load(ctx, c, state.DomainSystem, "System", c.client.SystemInfo,
		func(info controlplane.SystemInfo, at time.Time) state.Action {
			return state.ReplaceSystem{Info: info, At: at}
		})
}

// LoadTab fetches the primary data set behind tab.
func (c *Controller) LoadTab(ctx context.Context, tab state.Tab) error {
	switch tab {
	case state.TabOverview:
		return c.LoadLogs(ctx)
	case state.TabSessions:
		return errors.Join(c.LoadSessions(ctx), c.LoadMessages(ctx))
	case state.TabKnowledge:
		return c.LoadKnowledge(ctx)
	case state.TabSettings:
		return c.LoadConfig(ctx)
	case state.TabVendors:
		return errors.Join(c.LoadVendors(ctx), c.LoadVendorItems(ctx))
	case state.TabRecipes:
		return c.LoadRecipes(ctx)
	case state.TabInventory:
		return c.LoadInventory(ctx)
	case state.TabMenu:
		return c.LoadMenu(ctx)
	case state.TabAutonomy:
		return c.LoadAutonomy(ctx)
	case state.TabSystem:
		return c.LoadSystem(ctx)
	}
	return nil
}

// Refresh reloads status and the active tab concurrently. Each half
// reports its own failure; the first error is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	tab := c.store.Snapshot().ActiveTab
	var g errgroup.Group
	g.Go(func() error { return c.LoadStatus(ctx) })
	g.Go(func() error { return c.LoadTab(ctx, tab) })
	return g.Wait()
}

// SelectTab switches the active tab and loads its data immediately.
func (c *Controller) SelectTab(ctx context.Context, tab state.Tab) error {
	c.store.Dispatch(state.SetTab{Tab: tab})
	return c.LoadTab(ctx, tab)
}
