package state

import "github.com/prepbrain/prepdeck/internal/controlplane"

// ConfigDraft is the editable subset of the server configuration.
type ConfigDraft struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	TopK          int
	RAGEnabled    bool
	OCREnabled    bool
	VisionEnabled bool
	ExtractImages bool
}

// Server-side defaults for fields missing from the config document.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
	defaultTopK        = 3
)

var (
	pathModel         = []string{"ollama", "model"}
	pathTemperature   = []string{"ollama", "temperature"}
	pathMaxTokens     = []string{"ollama", "max_tokens"}
	pathTopK          = []string{"rag", "top_k"}
	pathRAGEnabled    = []string{"rag", "enabled"}
	pathOCREnabled    = []string{"rag", "ocr", "enabled"}
	pathVisionEnabled = []string{"rag", "vision", "enabled"}
	pathExtractImages = []string{"rag", "image_processing", "extract_images"}
)

// DraftFromConfig projects the editable fields out of a config document.
func DraftFromConfig(data controlplane.ConfigData) ConfigDraft {
	return ConfigDraft{
		Model:         lookupString(data, pathModel, ""),
		Temperature:   lookupFloat(data, pathTemperature, defaultTemperature),
		MaxTokens:     int(lookupFloat(data, pathMaxTokens, defaultMaxTokens)),
		TopK:          int(lookupFloat(data, pathTopK, defaultTopK)),
		RAGEnabled:    lookupBool(data, pathRAGEnabled, true),
		OCREnabled:    lookupBool(data, pathOCREnabled, true),
		VisionEnabled: lookupBool(data, pathVisionEnabled, false),
		ExtractImages: lookupBool(data, pathExtractImages, false),
	}
}

// ApplyDraft returns a deep copy of data with the draft fields written at
// their paths. Keys the draft does not own survive untouched.
func ApplyDraft(data controlplane.ConfigData, d ConfigDraft) controlplane.ConfigData {
	out := CloneConfig(data)
	setPath(out, pathModel, d.Model)
	setPath(out, pathTemperature, d.Temperature)
	setPath(out, pathMaxTokens, d.MaxTokens)
	setPath(out, pathTopK, d.TopK)
	setPath(out, pathRAGEnabled, d.RAGEnabled)
	setPath(out, pathOCREnabled, d.OCREnabled)
	setPath(out, pathVisionEnabled, d.VisionEnabled)
	setPath(out, pathExtractImages, d.ExtractImages)
	return out
}

// CloneConfig deep-copies nested maps and slices of a decoded JSON document.
func CloneConfig(data controlplane.ConfigData) controlplane.ConfigData {
	out := make(controlplane.ConfigData, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(CloneConfig(t))
	case controlplane.ConfigData:
		return map[string]any(CloneConfig(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func lookup(data map[string]any, path []string) (any, bool) {
	cur := data
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func lookupString(data map[string]any, path []string, def string) string {
	if v, ok := lookup(data, path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func lookupFloat(data map[string]any, path []string, def float64) float64 {
	v, ok := lookup(data, path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func lookupBool(data map[string]any, path []string, def bool) bool {
	if v, ok := lookup(data, path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// setPath writes value at path, creating intermediate sections as needed.
func setPath(data map[string]any, path []string, value any) {
	cur := data
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}
