package dashboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/docprobe"
	"github.com/prepbrain/prepdeck/internal/state"
)

// UploadExtensions are the file types the ingestion endpoint accepts.
var UploadExtensions = []string{".pdf", ".txt", ".docx"}

// SupportedUpload reports whether name has an ingestible extension.
func SupportedUpload(name string) bool {
	return slices.Contains(UploadExtensions, strings.ToLower(filepath.Ext(name)))
}

// --- sessions ---

// SelectSession changes the selected session and loads its messages. A nil
// id clears the selection.
func (c *Controller) SelectSession(ctx context.Context, id *int64) error {
	c.store.Dispatch(state.SelectSession{ID: id})
	return c.LoadMessages(ctx)
}

// ClearSession deletes every message of a session and returns the count.
func (c *Controller) ClearSession(ctx context.Context, id int64) (int, error) {
	n, err := c.client.ClearSessionMessages(ctx, id)
	_ = c.LoadSessions(ctx)
	_ = c.LoadMessages(ctx)
	c.settle(ctx, KindReconcile, "Session clear", fmt.Sprintf("Cleared %d messages.", n), err)
	return n, err
}

// --- knowledge ---

// UploadKnowledgeFile ingests the file at path. PDFs are inspected locally
// first so the log carries a text-density hint before the upload starts.
func (c *Controller) UploadKnowledgeFile(ctx context.Context, path string, opts controlplane.UploadOptions) (controlplane.IngestResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, c.reject("Select a file before ingestion.")
	}
	if !SupportedUpload(path) {
		return nil, c.reject("Only PDF, TXT and DOCX files can be ingested.")
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		c.preflight(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("opening %s: %w", path, err)
		c.settle(ctx, KindReconcile, "Ingestion", "", err)
		return nil, err
	}
	defer f.Close()

	return c.UploadKnowledge(ctx, filepath.Base(path), f, opts)
}

func (c *Controller) preflight(path string, opts controlplane.UploadOptions) {
	rep, err := docprobe.ProbeFile(path)
	if err != nil {
		c.logger.Warn("pdf preflight failed", "path", path, "error", err)
		return
	}
	c.logger.Info("pdf preflight", "path", path, "pages", rep.Pages,
		"text_chars", rep.TextChars, "profile", rep.Profile())
	if rep.ImageRich() && !opts.ExtractImages {
		c.logger.Info("pdf looks image-rich; image extraction is off", "path", path)
	}
}

// UploadKnowledge ingests r under name and refetches the knowledge list.
func (c *Controller) UploadKnowledge(ctx context.Context, name string, r io.Reader, opts controlplane.UploadOptions) (controlplane.IngestResult, error) {
	if name == "" || r == nil {
		return nil, c.reject("Select a file before ingestion.")
	}
	if !SupportedUpload(name) {
		return nil, c.reject("Only PDF, TXT and DOCX files can be ingested.")
	}
	res, err := c.client.UploadKnowledge(ctx, name, r, opts)
	_ = c.LoadKnowledge(ctx)
	c.settle(ctx, KindReconcile, "Ingestion", fmt.Sprintf("Ingested %s.", name), err)
	return res, err
}

func (c *Controller) findSource(id string) (controlplane.KnowledgeSource, bool) {
	for _, k := range c.store.Snapshot().Knowledge {
		if k.ID == id {
			return k, true
		}
	}
	return controlplane.KnowledgeSource{}, false
}

// ToggleKnowledge activates or deactivates a source.
func (c *Controller) ToggleKnowledge(ctx context.Context, id string, active bool) error {
	if src, ok := c.findSource(id); ok && !src.CanToggle {
		return c.reject(fmt.Sprintf("%s cannot be toggled.", src.Title))
	}
	err := c.client.ToggleKnowledge(ctx, id, active)
	_ = c.LoadKnowledge(ctx)
	notice := "Source disabled."
	if active {
		notice = "Source enabled."
	}
	c.settle(ctx, KindReconcile, "Knowledge toggle", notice, err)
	return err
}

func (c *Controller) DeleteKnowledge(ctx context.Context, id string) error {
	if src, ok := c.findSource(id); ok && !src.CanDelete {
		return c.reject(fmt.Sprintf("%s cannot be deleted.", src.Title))
	}
	err := c.client.DeleteKnowledge(ctx, id)
	_ = c.LoadKnowledge(ctx)
	c.settle(ctx, KindReconcile, "Knowledge delete", "Source deleted.", err)
	return err
}

// --- settings ---

// EditConfig applies edit to a copy of the draft and marks it dirty.
func (c *Controller) EditConfig(edit func(*state.ConfigDraft)) state.ConfigDraft {
	d := c.store.Snapshot().Draft
	edit(&d)
	c.store.Dispatch(state.EditDraft{Draft: d})
	return d
}

// DiscardConfigEdits resets the draft to the last loaded server config.
func (c *Controller) DiscardConfigEdits() {
	c.store.Dispatch(state.DiscardDraft{})
}

// SaveConfig writes the draft back into a deep copy of the loaded config and
// PUTs the whole document, so keys the console does not model survive.
func (c *Controller) SaveConfig(ctx context.Context) error {
	snap := c.store.Snapshot()
	if snap.ConfigData == nil {
		return c.reject("Load settings before saving.")
	}
	merged := state.ApplyDraft(snap.ConfigData, snap.Draft)

	// Earlier in-flight config loads must not overwrite the saved copy.
	c.store.Begin(state.DomainConfig)
	saved, err := c.client.PutConfig(ctx, merged)
	if err == nil {
		if saved == nil {
			saved = merged
		}
		c.store.Dispatch(state.ReplaceConfig{Data: saved, ResetDraft: true, At: c.opts.Now()})
	}
	c.settle(ctx, KindReconcile, "Settings save", "Settings saved.", err)
	return err
}

// --- vendors ---

func (c *Controller) SelectVendor(ctx context.Context, id *int64) error {
	c.store.Dispatch(state.SelectVendor{ID: id})
	return c.LoadVendorItems(ctx)
}

func (c *Controller) SaveVendor(ctx context.Context, v controlplane.Vendor) (controlplane.SaveResult, error) {
	if strings.TrimSpace(v.Name) == "" {
		return controlplane.SaveResult{}, c.reject("Vendor name is required.")
	}
	res, err := c.client.SaveVendor(ctx, v)
	_ = c.LoadVendors(ctx)
	c.settle(ctx, KindReconcile, "Vendor save", "Vendor saved.", err)
	return res, err
}

func (c *Controller) DeleteVendor(ctx context.Context, id int64) error {
	err := c.client.DeleteVendor(ctx, id)
	if err == nil {
		if sel := c.store.Snapshot().SelectedVendor; sel != nil && *sel == id {
			c.store.Dispatch(state.SelectVendor{ID: nil})
		}
	}
	_ = c.LoadVendors(ctx)
	c.settle(ctx, KindReconcile, "Vendor delete", "Vendor deleted.", err)
	return err
}

// itemVendor resolves the vendor an item call targets: vendorID when set,
// otherwise the selected vendor. The vendor becomes the selection so the
// refetch afterwards reads that vendor's catalogue.
func (c *Controller) itemVendor(vendorID int64) (int64, bool) {
	sel := c.store.Snapshot().SelectedVendor
	if vendorID == 0 {
		if sel == nil {
			return 0, false
		}
		return *sel, true
	}
	if sel == nil || *sel != vendorID {
		c.store.Dispatch(state.SelectVendor{ID: &vendorID})
	}
	return vendorID, true
}

// SaveVendorItem creates or updates a catalogue item. A zero VendorID means
// the selected vendor.
func (c *Controller) SaveVendorItem(ctx context.Context, item controlplane.VendorItem) (controlplane.SaveResult, error) {
	if strings.TrimSpace(item.Name) == "" {
		return controlplane.SaveResult{}, c.reject("Item name is required.")
	}
	vendorID, ok := c.itemVendor(item.VendorID)
	if !ok {
		return controlplane.SaveResult{}, c.reject("Select a vendor first.")
	}
	item.VendorID = vendorID
	res, err := c.client.SaveVendorItem(ctx, item)
	_ = c.LoadVendorItems(ctx)
	c.settle(ctx, KindReconcile, "Item save", "Item saved.", err)
	return res, err
}

// DeleteVendorItem removes item id from a vendor's catalogue. A zero
// vendorID means the selected vendor.
func (c *Controller) DeleteVendorItem(ctx context.Context, vendorID, id int64) error {
	if _, ok := c.itemVendor(vendorID); !ok {
		return c.reject("Select a vendor first.")
	}
	err := c.client.DeleteVendorItem(ctx, id)
	_ = c.LoadVendorItems(ctx)
	c.settle(ctx, KindReconcile, "Item delete", "Item deleted.", err)
	return err
}

// --- recipes ---

func (c *Controller) SaveRecipe(ctx context.Context, r controlplane.Recipe) (controlplane.SaveResult, error) {
	if strings.TrimSpace(r.Name) == "" {
		return controlplane.SaveResult{}, c.reject("Recipe name is required.")
	}
	res, err := c.client.SaveRecipe(ctx, r)
	_ = c.LoadRecipes(ctx)
	c.settle(ctx, KindReconcile, "Recipe save", "Recipe saved.", err)
	return res, err
}

func (c *Controller) DeleteRecipe(ctx context.Context, id int64) error {
	err := c.client.DeleteRecipe(ctx, id)
	_ = c.LoadRecipes(ctx)
	c.settle(ctx, KindReconcile, "Recipe delete", "Recipe deleted.", err)
	return err
}

// PrepUpdate records on-hand quantities keyed by recipe id.
func (c *Controller) PrepUpdate(ctx context.Context, onHand map[int64]float64) error {
	if len(onHand) == 0 {
		return c.reject("Enter at least one on-hand quantity.")
	}
	for _, qty := range onHand {
		if qty < 0 {
			return c.reject("On-hand quantities cannot be negative.")
		}
	}
	err := c.client.PrepUpdate(ctx, onHand)
	_ = c.LoadRecipes(ctx)
	c.settle(ctx, KindReconcile, "Prep update", fmt.Sprintf("Updated on-hand for %d recipes.", len(onHand)), err)
	return err
}

// --- lab & composer ---

func (c *Controller) TestBrain(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", c.reject("Enter a prompt before testing.")
	}
	answer, err := c.client.TestBrain(ctx, prompt)
	if err == nil {
		c.store.Dispatch(state.SetBrainAnswer{Answer: answer})
	}
	c.settle(ctx, KindReconcile, "Brain test", "Brain answered.", err)
	return answer, err
}

// Transcribe sends the audio file at path to the speech-to-text endpoint.
func (c *Controller) Transcribe(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", c.reject("Select an audio file before transcribing.")
	}
	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("opening %s: %w", path, err)
		c.settle(ctx, KindReconcile, "Transcription", "", err)
		return "", err
	}
	defer f.Close()

	text, err := c.client.Transcribe(ctx, filepath.Base(path), f)
	if err == nil {
		c.store.Dispatch(state.SetTranscript{Text: text})
	}
	c.settle(ctx, KindReconcile, "Transcription", "Transcription ready.", err)
	return text, err
}

// DraftEmail asks the composer for an order email to a vendor.
func (c *Controller) DraftEmail(ctx context.Context, vendorID *int64, brief string) (controlplane.EmailDraft, error) {
	if vendorID == nil {
		return controlplane.EmailDraft{}, c.reject("Select a vendor before drafting.")
	}
	if strings.TrimSpace(brief) == "" {
		return controlplane.EmailDraft{}, c.reject("Enter context before drafting.")
	}
	draft, err := c.client.DraftEmail(ctx, *vendorID, brief)
	if err == nil {
		c.store.Dispatch(state.SetEmailDraft{Draft: &draft})
	}
	c.settle(ctx, KindReconcile, "Draft", "Draft ready.", err)
	return draft, err
}
