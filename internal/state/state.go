// Package state holds the console's client-side view of the control plane.
//
// All mutation goes through Reduce, one action at a time, so a recorded
// action list replays to the same State. Store wraps Reduce with a mutex,
// per-domain generation stamps and subscriber fan-out.
package state

import (
	"time"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// MaxLocalLogs caps the console-generated entries kept in the log buffer.
const MaxLocalLogs = 120

// Tab is a dashboard view.
type Tab string

const (
	TabOverview  Tab = "overview"
	TabSessions  Tab = "sessions"
	TabKnowledge Tab = "knowledge"
	TabSettings  Tab = "settings"
	TabVendors   Tab = "vendors"
	TabRecipes   Tab = "recipes"
	TabInventory Tab = "inventory"
	TabMenu      Tab = "menu"
	TabAutonomy  Tab = "autonomy"
	TabSystem    Tab = "system"
	TabLab       Tab = "lab"
)

// Tabs lists every view in display order.
var Tabs = []Tab{
	TabOverview, TabSessions, TabKnowledge, TabSettings, TabVendors,
	TabRecipes, TabInventory, TabMenu, TabAutonomy, TabSystem, TabLab,
}

// ParseTab returns the Tab named s.
func ParseTab(s string) (Tab, bool) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Domain is one independently fetched slice of state.
type Domain string

const (
	DomainStatus       Domain = "status"
	DomainLogs         Domain = "logs"
	DomainSessions     Domain = "sessions"
	DomainMessages     Domain = "messages"
	DomainKnowledge    Domain = "knowledge"
	DomainConfig       Domain = "config"
	DomainVendors      Domain = "vendors"
	DomainVendorItems  Domain = "vendor_items"
	DomainRecipes      Domain = "recipes"
	DomainInventory    Domain = "inventory"
	DomainMenu         Domain = "menu"
	DomainAutonomy     Domain = "autonomy"
	DomainAutonomyLogs Domain = "autonomy_logs"
	DomainSystem       Domain = "system"
)

type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerNotice
	BannerError
)

// Banner is the single operator-facing notice/error slot. A notice and an
// error never coexist; the latest write wins.
type Banner struct {
	Kind BannerKind
	Text string
}

// State is an immutable snapshot. Slices and maps inside it are replaced,
// never mutated in place.
type State struct {
	// Version increases with every applied action.
	Version uint64

	ActiveTab  Tab
	Banner     Banner
	Processing bool

	Status *controlplane.StatusSnapshot
	Logs   []controlplane.LogEntry

	// LocalLogs counts the console-generated entries at the head of Logs.
	LocalLogs int

	Sessions        []controlplane.Session
	SelectedSession *int64
	Messages        []controlplane.SessionMessage

	Knowledge []controlplane.KnowledgeSource

	ConfigData controlplane.ConfigData
	Draft      ConfigDraft
	DraftDirty bool

	Vendors        []controlplane.Vendor
	SelectedVendor *int64
	VendorItems    []controlplane.VendorItem
	Recipes        []controlplane.Recipe
	Inventory      []controlplane.InventoryItem
	Menu           *controlplane.MenuEngineering

	Autonomy     *controlplane.AutonomyStatus
	AutonomyLogs []controlplane.AutonomyLogEntry
	System       *controlplane.SystemInfo

	EmailDraft  *controlplane.EmailDraft
	BrainAnswer string
	Transcript  string

	LastLoaded map[Domain]time.Time
}

// Initial is the state before anything has been fetched.
func Initial() State {
	return State{
		ActiveTab:  TabOverview,
		Draft:      DraftFromConfig(nil),
		LastLoaded: map[Domain]time.Time{},
	}
}
