package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// --- vendors ---

func (s *Sim) Vendors(ctx context.Context) ([]controlplane.Vendor, error) {
	if err := s.fault(ctx, "vendors"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]controlplane.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// SaveVendor creates v when its ID is nil and replaces it otherwise.
func (s *Sim) SaveVendor(ctx context.Context, v controlplane.Vendor) (controlplane.SaveResult, error) {
	if err := s.fault(ctx, "vendors.save"); err != nil {
		return controlplane.SaveResult{}, err
	}
	if strings.TrimSpace(v.Name) == "" {
		return controlplane.SaveResult{}, errorf(http.StatusBadRequest, "Vendor name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == nil {
		id := s.allocID()
		v.ID = &id
		s.vendors[id] = v
		return controlplane.SaveResult{OK: true, ID: &id}, nil
	}
	if _, ok := s.vendors[*v.ID]; !ok {
		return controlplane.SaveResult{}, errorf(http.StatusNotFound, "Vendor not found")
	}
	s.vendors[*v.ID] = v
	return controlplane.SaveResult{OK: true}, nil
}

// DeleteVendor removes the vendor and its items.
func (s *Sim) DeleteVendor(ctx context.Context, id int64) error {
	if err := s.fault(ctx, "vendors.delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[id]; !ok {
		return errorf(http.StatusNotFound, "Vendor not found")
	}
	delete(s.vendors, id)
	for itemID, it := range s.items {
		if it.VendorID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *Sim) VendorItems(ctx context.Context, vendorID int64) ([]controlplane.VendorItem, error) {
	if err := s.fault(ctx, "vendors.items"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []controlplane.VendorItem{}
	for _, it := range s.items {
		if it.VendorID == vendorID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// SaveVendorItem creates the item under item.VendorID when its ID is nil.
// Updates keep the original vendor.
func (s *Sim) SaveVendorItem(ctx context.Context, item controlplane.VendorItem) (controlplane.SaveResult, error) {
	if err := s.fault(ctx, "vendors.items.save"); err != nil {
		return controlplane.SaveResult{}, err
	}
	if strings.TrimSpace(item.Name) == "" {
		return controlplane.SaveResult{}, errorf(http.StatusBadRequest, "Item name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == nil {
		if _, ok := s.vendors[item.VendorID]; !ok {
			return controlplane.SaveResult{}, errorf(http.StatusNotFound, "Vendor not found")
		}
		id := s.allocID()
		item.ID = &id
		s.items[id] = item
		return controlplane.SaveResult{OK: true, ID: &id}, nil
	}
	prev, ok := s.items[*item.ID]
	if !ok {
		return controlplane.SaveResult{}, errorf(http.StatusNotFound, "Item not found")
	}
	item.VendorID = prev.VendorID
	s.items[*item.ID] = item
	return controlplane.SaveResult{OK: true}, nil
}

func (s *Sim) DeleteVendorItem(ctx context.Context, id int64) error {
	if err := s.fault(ctx, "vendors.items.delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return errorf(http.StatusNotFound, "Item not found")
	}
	delete(s.items, id)
	return nil
}

// InventorySheets lists active vendor items ordered by category then name.
func (s *Sim) InventorySheets(ctx context.Context) ([]controlplane.InventoryItem, error) {
	if err := s.fault(ctx, "inventory"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []controlplane.InventoryItem{}
	for id, it := range s.items {
		if !it.IsActive {
			continue
		}
		out = append(out, controlplane.InventoryItem{ID: id, Name: it.Name, Unit: it.Unit, Category: it.Category})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- recipes ---

// Ingredient is one entry of a recipe's ingredients JSON.
type Ingredient struct {
	Item string  `json:"item"`
	Qty  float64 `json:"qty"`
	Unit string  `json:"unit"`
}

// Recipes lists active recipes by name with a cost estimate from vendor
// prices.
func (s *Sim) Recipes(ctx context.Context) ([]controlplane.Recipe, error) {
	if err := s.fault(ctx, "recipes"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := s.priceIndexLocked()
	out := []controlplane.Recipe{}
	for _, r := range s.recipes {
		if !r.IsActive {
			continue
		}
		r.EstimatedCost = estimateCost(r.Ingredients, prices)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Sim) priceIndexLocked() map[string]float64 {
	prices := make(map[string]float64, len(s.items))
	for _, it := range s.items {
		if it.Price != nil {
			prices[strings.ToLower(strings.TrimSpace(it.Name))] = *it.Price
		}
	}
	return prices
}

// estimateCost prices each ingredient by name. Unparseable ingredient lists
// and unpriced items cost nothing.
func estimateCost(ingredients string, prices map[string]float64) float64 {
	if strings.TrimSpace(ingredients) == "" {
		return 0
	}
	var list []Ingredient
	if err := json.Unmarshal([]byte(ingredients), &list); err != nil {
		return 0
	}
	var total float64
	for _, ing := range list {
		total += prices[strings.ToLower(strings.TrimSpace(ing.Item))] * ing.Qty
	}
	return round2(total)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *Sim) SaveRecipe(ctx context.Context, r controlplane.Recipe) (controlplane.SaveResult, error) {
	if err := s.fault(ctx, "recipes.save"); err != nil {
		return controlplane.SaveResult{}, err
	}
	if strings.TrimSpace(r.Name) == "" {
		return controlplane.SaveResult{}, errorf(http.StatusBadRequest, "Recipe name is required")
	}
	r.EstimatedCost = 0
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == nil {
		id := s.allocID()
		r.ID = &id
		r.IsActive = true
		s.recipes[id] = r
		return controlplane.SaveResult{OK: true, ID: &id}, nil
	}
	prev, ok := s.recipes[*r.ID]
	if !ok || !prev.IsActive {
		return controlplane.SaveResult{}, errorf(http.StatusNotFound, "Recipe not found")
	}
	r.IsActive = true
	s.recipes[*r.ID] = r
	return controlplane.SaveResult{OK: true}, nil
}

// DeleteRecipe deactivates the recipe; it stays in storage.
func (s *Sim) DeleteRecipe(ctx context.Context, id int64) error {
	if err := s.fault(ctx, "recipes.delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[id]
	if !ok || !r.IsActive {
		return errorf(http.StatusNotFound, "Recipe not found")
	}
	r.IsActive = false
	s.recipes[id] = r
	return nil
}

// PrepUpdate sets on-hand quantities keyed by recipe id. Keys that are not
// numeric ids or name unknown recipes are skipped.
func (s *Sim) PrepUpdate(ctx context.Context, onHand map[string]float64) (int, error) {
	if err := s.fault(ctx, "prep-update"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for key, qty := range onHand {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id < 0 {
			continue
		}
		r, ok := s.recipes[id]
		if !ok {
			continue
		}
		r.OnHand = qty
		s.recipes[id] = r
		updated++
	}
	return updated, nil
}

// --- menu engineering ---

// MenuEngineering classifies active recipes against the sales-weighted
// average margin and the mean sales count.
func (s *Sim) MenuEngineering(ctx context.Context) (controlplane.MenuEngineering, error) {
	if err := s.fault(ctx, "menu"); err != nil {
		return controlplane.MenuEngineering{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := s.priceIndexLocked()
	items := []controlplane.MenuItem{}
	for id, r := range s.recipes {
		if !r.IsActive {
			continue
		}
		cost := estimateCost(r.Ingredients, prices)
		margin := r.SalesPrice - cost
		var pc float64
		if r.SalesPrice > 0 {
			pc = round2(margin / r.SalesPrice * 100)
		}
		items = append(items, controlplane.MenuItem{
			ID:       id,
			Name:     r.Name,
			Cost:     cost,
			Price:    r.SalesPrice,
			Margin:   round2(margin),
			Count:    r.RecentSalesCount,
			MarginPC: pc,
		})
	}
	if len(items) == 0 {
		return controlplane.MenuEngineering{Items: items}, nil
	}

	var sold int
	var weighted float64
	for _, it := range items {
		sold += it.Count
		weighted += it.Margin * float64(it.Count)
	}
	var avgMargin float64
	if sold > 0 {
		avgMargin = weighted / float64(sold)
	}
	avgCount := float64(sold) / float64(len(items))

	for i := range items {
		items[i].Classification = classify(items[i].Margin >= avgMargin, float64(items[i].Count) >= avgCount)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return controlplane.MenuEngineering{
		Items:    items,
		Averages: controlplane.MenuAverages{Margin: round2(avgMargin), Count: round2(avgCount)},
	}, nil
}

func classify(highProfit, highPopularity bool) string {
	switch {
	case highProfit && highPopularity:
		return "Star"
	case highProfit:
		return "Puzzle"
	case highPopularity:
		return "Plowhorse"
	default:
		return "Dog"
	}
}

// --- test lab & composer ---

// TestBrain answers a prompt with the configured model. It needs Ollama.
func (s *Sim) TestBrain(ctx context.Context, prompt string) (string, error) {
	if err := s.fault(ctx, "test.brain"); err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errorf(http.StatusBadRequest, "Prompt is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ollamaRunning {
		return "", errorf(http.StatusServiceUnavailable, "Ollama is not reachable")
	}
	model := lookupString(s.config, "unknown", "ollama", "model")
	active := 0
	for _, k := range s.knowledge {
		if k.Active() {
			active++
		}
	}
	return fmt.Sprintf("**%s** (%d knowledge sources)\n\n> %s\n\nNoted. I will factor that into tonight's prep list.", model, active, prompt), nil
}

// Transcribe returns a placeholder transcript; the simulator has no speech
// model.
func (s *Sim) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if err := s.fault(ctx, "test.transcribe"); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", errorf(http.StatusBadRequest, "Audio file is empty")
	}
	return fmt.Sprintf("[%s: %d bytes of audio] eighty-six the halibut, two more quarts of demi", filename, len(audio)), nil
}

// DraftEmail writes an order email to a vendor. The first "Subject:" line
// of the generated text becomes the subject.
func (s *Sim) DraftEmail(ctx context.Context, vendorID int64, brief string) (controlplane.EmailDraft, error) {
	if err := s.fault(ctx, "composer.draft"); err != nil {
		return controlplane.EmailDraft{}, err
	}
	s.mu.Lock()
	v, ok := s.vendors[vendorID]
	s.mu.Unlock()
	if !ok {
		return controlplane.EmailDraft{}, errorf(http.StatusNotFound, "Vendor not found")
	}

	contact := v.ContactName
	if contact == "" {
		contact = "Sales Rep"
	}
	text := fmt.Sprintf("Subject: Order request for %s\n\nHi %s,\n\n%s\n\nPlease confirm availability before the %s cutoff.\n\nThanks,\nChef",
		v.Name, contact, strings.TrimSpace(brief), orDefault(v.CutoffTime, "usual"))
	subject, body := splitSubject(text)
	return controlplane.EmailDraft{VendorEmail: v.Email, Subject: subject, Body: body}, nil
}

func splitSubject(text string) (string, string) {
	subject := "Order Inquiry"
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if rest, ok := strings.CutPrefix(line, "Subject:"); ok {
			subject = strings.TrimSpace(rest)
			lines = append(lines[:i], lines[i+1:]...)
			break
		}
	}
	return subject, strings.TrimSpace(strings.Join(lines, "\n"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
