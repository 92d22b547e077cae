package sim

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/docprobe"
)

// --- sessions ---

// Sessions returns every session, newest first.
func (s *Sim) Sessions(ctx context.Context) ([]controlplane.Session, error) {
	if err := s.fault(ctx, "sessions"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]controlplane.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		row := sess.Session
		row.MessageCount = len(sess.messages)
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// SessionMessages returns the last limit messages of a session in
// chronological order.
func (s *Sim) SessionMessages(ctx context.Context, id int64, limit int) ([]controlplane.SessionMessage, error) {
	if err := s.fault(ctx, "sessions.messages"); err != nil {
		return nil, err
	}
	limit = max(1, min(limit, 1000))

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(id)
	if sess == nil {
		return []controlplane.SessionMessage{}, nil
	}
	msgs := sess.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

func (s *Sim) ClearSessionMessages(ctx context.Context, id int64) (int, error) {
	if err := s.fault(ctx, "sessions.clear"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(id)
	if sess == nil {
		return 0, nil
	}
	n := len(sess.messages)
	sess.messages = nil
	return n, nil
}

func (s *Sim) sessionLocked(id int64) *session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// AddMessage appends a message to a session, creating the session if needed.
func (s *Sim) AddMessage(sessionID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(sessionID)
	ts := s.now().UTC().Format("2006-01-02 15:04:05")
	if sess == nil {
		sess = &session{Session: controlplane.Session{
			ID:          sessionID,
			DisplayName: fmt.Sprintf("Session %d", sessionID),
			CreatedAt:   ts,
			IsActive:    true,
		}}
		s.sessions = append(s.sessions, sess)
	}
	sess.messages = append(sess.messages, controlplane.SessionMessage{
		ID:        s.allocID(),
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	})
}

// --- knowledge ---

// UploadExtensions lists the file types the ingestion endpoint accepts.
var UploadExtensions = []string{".pdf", ".txt", ".docx"}

const (
	textRichChars  = 20000
	lowTextChars   = 500
	charsPerChunk  = 800
	defaultProfile = "LOW TEXT"
)

func (s *Sim) Knowledge(ctx context.Context) ([]controlplane.KnowledgeSource, error) {
	if err := s.fault(ctx, "knowledge"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]controlplane.KnowledgeSource, len(s.knowledge))
	for i, k := range s.knowledge {
		k.Warnings = slices.Clone(k.Warnings)
		out[i] = k
	}
	return out, nil
}

// knowledgeIndexLocked matches either the source id or its ingest id.
func (s *Sim) knowledgeIndexLocked(id string) int {
	for i, k := range s.knowledge {
		if k.ID == id || k.IngestID == id {
			return i
		}
	}
	return -1
}

func (s *Sim) ToggleKnowledge(ctx context.Context, id string, active bool) error {
	if err := s.fault(ctx, "knowledge.toggle"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.knowledgeIndexLocked(id)
	if i < 0 {
		return errorf(http.StatusNotFound, "Source not found")
	}
	if !s.knowledge[i].CanToggle {
		return errorf(http.StatusBadRequest, "Source cannot be toggled")
	}
	if active {
		s.knowledge[i].Status = "active"
	} else {
		s.knowledge[i].Status = "disabled"
	}
	return nil
}

// DeleteKnowledge is idempotent: deleting an unknown source succeeds.
func (s *Sim) DeleteKnowledge(ctx context.Context, id string) error {
	if err := s.fault(ctx, "knowledge.delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.knowledgeIndexLocked(id)
	if i < 0 {
		return nil
	}
	if !s.knowledge[i].CanDelete {
		return errorf(http.StatusBadRequest, "Source cannot be deleted")
	}
	s.knowledge = slices.Delete(s.knowledge, i, i+1)
	return nil
}

// UploadKnowledge ingests a document. PDFs are inspected with docprobe to
// decide the text profile and whether OCR would be needed.
func (s *Sim) UploadKnowledge(ctx context.Context, filename string, data []byte, opts controlplane.UploadOptions) (controlplane.IngestResult, error) {
	if err := s.fault(ctx, "knowledge.upload"); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(UploadExtensions, ext) {
		return nil, errorf(http.StatusBadRequest, "Only .pdf, .txt, and .docx files are supported")
	}
	if len(data) == 0 {
		return nil, errorf(http.StatusBadRequest, "Uploaded file is empty")
	}

	var (
		chars     int
		imageRich bool
		needsOCR  bool
		warnings  []string
	)
	switch ext {
	case ".pdf":
		rep, err := docprobe.Probe(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, errorf(http.StatusBadRequest, "Could not read PDF: %v", err)
		}
		chars = rep.TextChars
		imageRich = rep.ImageRich()
		needsOCR = rep.NeedsOCR(docprobe.DefaultThresholds)
	case ".txt":
		chars = utf8.RuneCount(data)
	default:
		// docx is a zip; without unpacking it, assume a third of it is text.
		chars = len(data) / 3
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ocrEnabled := lookupBool(s.config, true, "rag", "ocr", "enabled")
	if chars < lowTextChars {
		warnings = append(warnings, fmt.Sprintf("low_text_extracted: extracted_text_chars=%d", chars))
	}
	if needsOCR && !ocrEnabled {
		warnings = append(warnings, "ocr_required_but_disabled")
	}
	if imageRich && opts.ExtractImages {
		warnings = append(warnings, "images_extracted")
	}

	profile := defaultProfile
	if chars >= textRichChars {
		profile = "TEXT-RICH"
	}
	if imageRich {
		profile = "IMAGE-RICH"
	}

	chunks := max(1, int(math.Ceil(float64(chars)/charsPerChunk)))
	sourceID := uuid.NewString()
	src := controlplane.KnowledgeSource{
		ID:               sourceID,
		SourceID:         &sourceID,
		IngestID:         uuid.NewString(),
		SourceName:       filename,
		Title:            titleFromFilename(filename),
		Type:             "upload",
		KnowledgeTier:    "tier1_recipe_ops",
		DateIngested:     s.now().UTC().Format("2006-01-02 15:04:05"),
		ChunkCount:       chunks,
		Status:           "active",
		Warnings:         warnings,
		OCRRequired:      needsOCR,
		OCRApplied:       needsOCR && ocrEnabled,
		ImageRich:        imageRich,
		TextProfileLabel: profile,
		CanToggle:        true,
		CanDelete:        true,
	}
	s.knowledge = append(s.knowledge, src)
	s.logf("INFO", "services.rag", "Ingested %s (%d chunks)", filename, chunks)

	return controlplane.IngestResult{
		"ok":           true,
		"source_id":    src.ID,
		"ingest_id":    src.IngestID,
		"chunks_added": chunks,
		"warnings":     slices.Clone(warnings),
	}, nil
}

// titleFromFilename turns "house_stocks-v2.pdf" into "House Stocks-v2".
func titleFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	words := strings.Fields(strings.ReplaceAll(stem, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// --- config ---

// configSections are the top-level keys a config update may carry.
var configSections = []string{
	"ollama", "rag", "runtime", "telegram", "transcription", "autonomy", "composer", "memory",
}

var secretMarkers = []string{"token", "password", "secret", "key", "credential"}

func defaultConfig() map[string]any {
	return map[string]any{
		"ollama": map[string]any{
			"model":       "llama3.1:8b",
			"temperature": 0.7,
			"max_tokens":  1024,
		},
		"rag": map[string]any{
			"enabled": true,
			"top_k":   3,
			"ocr":     map[string]any{"enabled": true},
			"vision":  map[string]any{"enabled": false},
			"image_processing": map[string]any{
				"extract_images": false,
			},
		},
		"runtime": map[string]any{
			"position_label": "KITCHEN A2",
		},
	}
}

func (s *Sim) Config(ctx context.Context) (controlplane.ConfigData, error) {
	if err := s.fault(ctx, "config"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.config), nil
}

// PutConfig replaces the whole config. Unknown top-level sections are
// rejected and secret-looking string values are dropped before storing.
func (s *Sim) PutConfig(ctx context.Context, cfg controlplane.ConfigData) (controlplane.ConfigData, error) {
	if err := s.fault(ctx, "config.put"); err != nil {
		return nil, err
	}
	var unknown []string
	for k := range cfg {
		if !slices.Contains(configSections, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errorf(http.StatusBadRequest, "Unknown config keys: %s", strings.Join(unknown, ", "))
	}

	clean := stripSecrets(deepCopy(cfg))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = clean
	s.logf("INFO", "services.config", "Configuration updated")
	return deepCopy(clean), nil
}

func stripSecrets(m map[string]any) map[string]any {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			m[k] = stripSecrets(val)
		case string:
			lower := strings.ToLower(k)
			for _, marker := range secretMarkers {
				if strings.Contains(lower, marker) {
					delete(m, k)
					break
				}
			}
		}
	}
	return m
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case controlplane.ConfigData:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func lookupBool(m map[string]any, def bool, path ...string) bool {
	var cur any = m
	for _, p := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur = node[p]
	}
	if b, ok := cur.(bool); ok {
		return b
	}
	return def
}

func lookupString(m map[string]any, def string, path ...string) string {
	var cur any = m
	for _, p := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur = node[p]
	}
	if s, ok := cur.(string); ok && s != "" {
		return s
	}
	return def
}
