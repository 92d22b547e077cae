package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
}

func (f *fakeUploader) UploadKnowledgeFile(ctx context.Context, path string, opts controlplane.UploadOptions) (controlplane.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, filepath.Base(path))
	if f.fail[filepath.Base(path)] {
		return nil, errors.New("upload refused")
	}
	return controlplane.IngestResult{"ok": true}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.paths)
}

func runWatcher(t *testing.T, w *Watcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_UploadsNewFilesAndArchives(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	up := &fakeUploader{}
	w := New(dir, up, controlplane.UploadOptions{}, []string{".pdf", ".txt", ".docx"}, 40*time.Millisecond)
	stop := runWatcher(t, w)

	// Give the watcher time to register before dropping files.
	time.Sleep(50 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "specials.txt"), []byte("Halibut, brown butter"), 0o644)
	os.WriteFile(filepath.Join(dir, "plating.jpg"), []byte{0xff, 0xd8}, 0o644)
	os.WriteFile(filepath.Join(dir, ".~lock.docx"), []byte("x"), 0o644)

	waitFor(t, func() bool { return len(up.uploaded()) >= 1 })
	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ArchiveDir, "specials.txt"))
		return err == nil
	})
	stop()

	if got := up.uploaded(); !slices.Equal(got, []string{"specials.txt"}) {
		t.Errorf("uploaded = %v, want [specials.txt]", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "plating.jpg")); err != nil {
		t.Errorf("ignored file was touched: %v", err)
	}
}

func TestWatcher_QueuesExistingFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "haccp.pdf"), []byte("%PDF-1.4"), 0o644)

	up := &fakeUploader{}
	stop := runWatcher(t, New(dir, up, controlplane.UploadOptions{}, []string{".pdf"}, 20*time.Millisecond))
	waitFor(t, func() bool { return len(up.uploaded()) == 1 })
	stop()
}

func TestWatcher_FailedUploadStaysInPlace(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "allergens.docx")
	os.WriteFile(path, []byte("PK"), 0o644)

	up := &fakeUploader{fail: map[string]bool{"allergens.docx": true}}
	stop := runWatcher(t, New(dir, up, controlplane.UploadOptions{}, []string{".docx"}, 20*time.Millisecond))
	waitFor(t, func() bool { return len(up.uploaded()) == 1 })
	stop()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("failed upload was moved: %v", err)
	}
}

func TestAccepts(t *testing.T) {
	w := New(t.TempDir(), &fakeUploader{}, controlplane.UploadOptions{}, []string{".PDF", ".txt"}, 0)
	cases := map[string]bool{
		"menu.pdf":     true,
		"MENU.PDF":     true,
		"notes.txt":    true,
		"photo.jpg":    false,
		".hidden.txt":  false,
		"archive.pdf~": false,
	}
	for name, want := range cases {
		if got := w.accepts(name); got != want {
			t.Errorf("accepts(%q) = %v, want %v", name, got, want)
		}
	}
	if w.settle != 2*time.Second {
		t.Errorf("default settle = %v", w.settle)
	}
}
