package sim

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

func ptr[T any](v T) *T { return &v }

// seed fills a fresh simulator with a running bot, two vendors, a handful of
// recipes, one chat session and a couple of knowledge sources.
func (s *Sim) seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ollamaRunning = true
	s.logf("INFO", "services.ollama", "Ollama reachable on host")
	s.startBotLocked()

	produce := s.addVendorLocked(controlplane.Vendor{
		Name: "Green Valley Produce", ContactName: "Marta", Email: "orders@greenvalley.example",
		OrderingWindow: "Mon-Fri", CutoffTime: "14:00", PreferredMethod: "email",
	})
	dairy := s.addVendorLocked(controlplane.Vendor{
		Name: "Northside Dairy", Email: "sales@northside.example", CutoffTime: "11:00", PreferredMethod: "phone",
	})

	s.addItemLocked(produce, "Shallots", "lb", "Produce", 2.40)
	s.addItemLocked(produce, "Garlic", "lb", "Produce", 3.10)
	s.addItemLocked(produce, "Lemons", "ea", "Produce", 0.45)
	s.addItemLocked(dairy, "Butter", "lb", "Dairy", 4.80)
	s.addItemLocked(dairy, "Heavy Cream", "qt", "Dairy", 5.25)

	s.addRecipeLocked("Beurre Blanc", `[{"item":"Butter","qty":1,"unit":"lb"},{"item":"Shallots","qty":0.25,"unit":"lb"},{"item":"Lemons","qty":2,"unit":"ea"}]`, 14, 42)
	s.addRecipeLocked("Garlic Confit", `[{"item":"Garlic","qty":2,"unit":"lb"}]`, 9, 12)
	s.addRecipeLocked("Lemon Posset", `[{"item":"Heavy Cream","qty":1,"unit":"qt"},{"item":"Lemons","qty":3,"unit":"ea"}]`, 11, 30)
	s.addRecipeLocked("Shallot Jam", `[{"item":"Shallots","qty":2,"unit":"lb"}]`, 7, 5)

	sess := &session{Session: controlplane.Session{
		ID: 1, DisplayName: "Chef Ana", CreatedAt: s.now().UTC().Format("2006-01-02 15:04:05"), IsActive: true,
	}}
	for i, line := range []string{
		"what's on the prep list for tonight?",
		"Beurre blanc x2, garlic confit, lemon posset.",
		"we're out of shallots",
		"Added shallots to the Green Valley order draft.",
	} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		sess.messages = append(sess.messages, controlplane.SessionMessage{
			ID: s.allocID(), Role: role, Content: line, CreatedAt: sess.CreatedAt,
		})
	}
	s.sessions = append(s.sessions, sess)

	s.addSourceLocked("House Sauces", 42, "TEXT-RICH", false, true)
	s.addSourceLocked("Walk-in Layout", 3, "IMAGE-RICH", true, true)
	s.addSourceLocked("Allergen Matrix", 12, "LOW TEXT", false, false)

	s.logf("WARNING", "services.autonomy", "Par level below target for Shallot Jam")
}

func (s *Sim) addVendorLocked(v controlplane.Vendor) int64 {
	id := s.allocID()
	v.ID = ptr(id)
	s.vendors[id] = v
	return id
}

func (s *Sim) addItemLocked(vendorID int64, name, unit, category string, price float64) {
	id := s.allocID()
	s.items[id] = controlplane.VendorItem{
		ID: ptr(id), VendorID: vendorID, Name: name, Unit: unit, Category: category,
		Price: ptr(price), IsActive: true, ItemCode: fmt.Sprintf("SKU-%03d", id),
	}
}

func (s *Sim) addRecipeLocked(name, ingredients string, price float64, sold int) {
	id := s.allocID()
	s.recipes[id] = controlplane.Recipe{
		ID: ptr(id), Name: name, Ingredients: ingredients, IsActive: true,
		YieldAmount: 1, YieldUnit: "batch", SalesPrice: price, RecentSalesCount: sold, ParLevel: 4,
	}
}

// addSourceLocked adds an active knowledge source. Sources without
// canToggle are built-in and can be neither toggled nor deleted.
func (s *Sim) addSourceLocked(title string, chunks int, profile string, imageRich, canToggle bool) {
	id := uuid.NewString()
	s.knowledge = append(s.knowledge, controlplane.KnowledgeSource{
		ID:               id,
		SourceID:         ptr(id),
		IngestID:         uuid.NewString(),
		SourceName:       title + ".pdf",
		Title:            title,
		Type:             "upload",
		DateIngested:     s.now().UTC().Format("2006-01-02 15:04:05"),
		ChunkCount:       chunks,
		Status:           "active",
		Warnings:         []string{},
		ImageRich:        imageRich,
		TextProfileLabel: profile,
		CanToggle:        canToggle,
		CanDelete:        canToggle,
	})
}
