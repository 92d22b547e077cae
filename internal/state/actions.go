package state

import (
	"maps"
	"time"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// Action is one state transition.
type Action interface {
	apply(s *State)
}

// Reduce returns s with a applied.
func Reduce(s State, a Action) State {
	a.apply(&s)
	s.Version++
	return s
}

// Replay folds actions over initial.
func Replay(initial State, actions []Action) State {
	s := initial
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}

func markLoaded(s *State, d Domain, at time.Time) {
	next := make(map[Domain]time.Time, len(s.LastLoaded)+1)
	maps.Copy(next, s.LastLoaded)
	next[d] = at
	s.LastLoaded = next
}

// --- banner & flags ---

type SetNotice struct{ Text string }

func (a SetNotice) apply(s *State) { s.Banner = Banner{Kind: BannerNotice, Text: a.Text} }

type SetError struct{ Text string }

func (a SetError) apply(s *State) { s.Banner = Banner{Kind: BannerError, Text: a.Text} }

type ClearBanner struct{}

func (ClearBanner) apply(s *State) { s.Banner = Banner{} }

type SetProcessing struct{ On bool }

func (a SetProcessing) apply(s *State) { s.Processing = a.On }

type SetTab struct{ Tab Tab }

func (a SetTab) apply(s *State) { s.ActiveTab = a.Tab }

// --- status & logs ---

type ReplaceStatus struct {
	Snapshot controlplane.StatusSnapshot
	At       time.Time
}

func (a ReplaceStatus) apply(s *State) {
	snap := a.Snapshot
	s.Status = &snap
	markLoaded(s, DomainStatus, a.At)
}

// ReplaceLogs installs a server log page, discarding local entries.
type ReplaceLogs struct {
	Entries []controlplane.LogEntry
	At      time.Time
}

func (a ReplaceLogs) apply(s *State) {
	s.Logs = a.Entries
	s.LocalLogs = 0
	markLoaded(s, DomainLogs, a.At)
}

// AppendLocalLog puts a console-generated entry at the head of the log
// buffer. At most MaxLocalLogs local entries are kept; the oldest local
// entry is dropped first and server entries below them are never trimmed.
type AppendLocalLog struct{ Entry controlplane.LogEntry }

func (a AppendLocalLog) apply(s *State) {
	local := min(s.LocalLogs, len(s.Logs))
	next := make([]controlplane.LogEntry, 0, len(s.Logs)+1)
	next = append(next, a.Entry)
	if local >= MaxLocalLogs {
		// Locals sit at the head, so the oldest one is at index local-1.
		next = append(next, s.Logs[:MaxLocalLogs-1]...)
		next = append(next, s.Logs[local:]...)
		local = MaxLocalLogs
	} else {
		next = append(next, s.Logs...)
		local++
	}
	s.Logs = next
	s.LocalLogs = local
}

// --- sessions ---

type ReplaceSessions struct {
	Sessions []controlplane.Session
	At       time.Time
}

func (a ReplaceSessions) apply(s *State) {
	s.Sessions = a.Sessions
	markLoaded(s, DomainSessions, a.At)
}

// SelectSession changes the selected session and drops the previous
// session's messages.
type SelectSession struct{ ID *int64 }

func (a SelectSession) apply(s *State) {
	s.SelectedSession = a.ID
	s.Messages = nil
}

type ReplaceMessages struct {
	SessionID int64
	Messages  []controlplane.SessionMessage
	At        time.Time
}

func (a ReplaceMessages) apply(s *State) {
	if s.SelectedSession == nil || *s.SelectedSession != a.SessionID {
		return
	}
	s.Messages = a.Messages
	markLoaded(s, DomainMessages, a.At)
}

// --- knowledge ---

type ReplaceKnowledge struct {
	Sources []controlplane.KnowledgeSource
	At      time.Time
}

func (a ReplaceKnowledge) apply(s *State) {
	s.Knowledge = a.Sources
	markLoaded(s, DomainKnowledge, a.At)
}

// --- config ---

// ReplaceConfig installs server config. The draft follows the server copy
// unless the operator has unsaved edits or ResetDraft is set.
type ReplaceConfig struct {
	Data       controlplane.ConfigData
	ResetDraft bool
	At         time.Time
}

func (a ReplaceConfig) apply(s *State) {
	s.ConfigData = a.Data
	if a.ResetDraft || !s.DraftDirty {
		s.Draft = DraftFromConfig(a.Data)
		s.DraftDirty = false
	}
	markLoaded(s, DomainConfig, a.At)
}

type EditDraft struct{ Draft ConfigDraft }

func (a EditDraft) apply(s *State) {
	s.Draft = a.Draft
	s.DraftDirty = true
}

type DiscardDraft struct{}

func (DiscardDraft) apply(s *State) {
	s.Draft = DraftFromConfig(s.ConfigData)
	s.DraftDirty = false
}

// --- vendors, recipes, inventory, menu ---

type ReplaceVendors struct {
	Vendors []controlplane.Vendor
	At      time.Time
}

func (a ReplaceVendors) apply(s *State) {
	s.Vendors = a.Vendors
	markLoaded(s, DomainVendors, a.At)
}

type SelectVendor struct{ ID *int64 }

func (a SelectVendor) apply(s *State) {
	s.SelectedVendor = a.ID
	s.VendorItems = nil
}

type ReplaceVendorItems struct {
	VendorID int64
	Items    []controlplane.VendorItem
	At       time.Time
}

func (a ReplaceVendorItems) apply(s *State) {
	if s.SelectedVendor == nil || *s.SelectedVendor != a.VendorID {
		return
	}
	s.VendorItems = a.Items
	markLoaded(s, DomainVendorItems, a.At)
}

type ReplaceRecipes struct {
	Recipes []controlplane.Recipe
	At      time.Time
}

func (a ReplaceRecipes) apply(s *State) {
	s.Recipes = a.Recipes
	markLoaded(s, DomainRecipes, a.At)
}

type ReplaceInventory struct {
	Items []controlplane.InventoryItem
	At    time.Time
}

func (a ReplaceInventory) apply(s *State) {
	s.Inventory = a.Items
	markLoaded(s, DomainInventory, a.At)
}

type ReplaceMenu struct {
	Menu controlplane.MenuEngineering
	At   time.Time
}

func (a ReplaceMenu) apply(s *State) {
	m := a.Menu
	s.Menu = &m
	markLoaded(s, DomainMenu, a.At)
}

// --- autonomy & system ---

type ReplaceAutonomy struct {
	Status controlplane.AutonomyStatus
	At     time.Time
}

func (a ReplaceAutonomy) apply(s *State) {
	st := a.Status
	s.Autonomy = &st
	markLoaded(s, DomainAutonomy, a.At)
}

type ReplaceAutonomyLogs struct {
	Entries []controlplane.AutonomyLogEntry
	At      time.Time
}

func (a ReplaceAutonomyLogs) apply(s *State) {
	s.AutonomyLogs = a.Entries
	markLoaded(s, DomainAutonomyLogs, a.At)
}

type ReplaceSystem struct {
	Info controlplane.SystemInfo
	At   time.Time
}

func (a ReplaceSystem) apply(s *State) {
	info := a.Info
	s.System = &info
	markLoaded(s, DomainSystem, a.At)
}

// --- lab & composer results ---

type SetEmailDraft struct{ Draft *controlplane.EmailDraft }

func (a SetEmailDraft) apply(s *State) { s.EmailDraft = a.Draft }

type SetBrainAnswer struct{ Answer string }

func (a SetBrainAnswer) apply(s *State) { s.BrainAnswer = a.Answer }

type SetTranscript struct{ Text string }

func (a SetTranscript) apply(s *State) { s.Transcript = a.Text }
