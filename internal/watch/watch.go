// Package watch turns a drop folder into a knowledge ingestion queue: files
// that land in the folder are uploaded once they stop changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// ArchiveDir is the subfolder uploaded files are moved into.
const ArchiveDir = "ingested"

// Uploader ingests one file from disk.
type Uploader interface {
	UploadKnowledgeFile(ctx context.Context, path string, opts controlplane.UploadOptions) (controlplane.IngestResult, error)
}

// Watcher uploads new files from a directory.
type Watcher struct {
	dir        string
	up         Uploader
	opts       controlplane.UploadOptions
	extensions []string
	settle     time.Duration
	logger     *slog.Logger
}

// New creates a Watcher for dir. Only files with one of extensions are
// picked up. A file is uploaded once no event has touched it for settle; if
// settle is <= 0, it defaults to 2s.
func New(dir string, up Uploader, opts controlplane.UploadOptions, extensions []string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		exts[i] = strings.ToLower(e)
	}
	return &Watcher{
		dir:        dir,
		up:         up,
		opts:       opts,
		extensions: exts,
		settle:     settle,
		logger:     slog.Default(),
	}
}

// Run watches until ctx is cancelled. Files already in the folder are
// queued on start.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, ArchiveDir), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop folder", "dir", w.dir, "extensions", w.extensions)

	pending := map[string]time.Time{}
	existing, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", w.dir, err)
	}
	for _, e := range existing {
		if !e.IsDir() && w.accepts(e.Name()) {
			pending[filepath.Join(w.dir, e.Name())] = time.Time{}
		}
	}

	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.accepts(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "dir", w.dir, "error", err)

		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(base)))
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if _, err := w.up.UploadKnowledgeFile(ctx, path, w.opts); err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("drop folder upload failed", "path", path, "error", err)
		}
		return
	}
	dest := filepath.Join(w.dir, ArchiveDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn("archiving uploaded file failed", "path", path, "error", err)
		return
	}
	w.logger.Info("drop folder file ingested", "path", path)
}
