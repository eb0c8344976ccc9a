package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

// DefaultExtensions are the file types picked up from the knowledge directory.
var DefaultExtensions = []string{".md", ".txt"}

// Watcher mirrors a directory of text files into the corpus. Each file is one
// document whose id is derived from its name.
type Watcher struct {
	dir        string
	sink       Sink
	extensions []string
	log        *logger.Logger
	fs         *fsnotify.Watcher
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, sink Sink, log *logger.Logger, extensions ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Watcher{
		dir:        dir,
		sink:       sink,
		extensions: extensions,
		log:        log.Named("ingest.watcher").With(zap.String("dir", dir)),
		fs:         fw,
	}, nil
}

// DocumentID returns the corpus id used for a file path.
func DocumentID(path string) string {
	return "file:" + filepath.Base(path)
}

// Scan ingests every matching file currently in the directory.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read knowledge dir: %w", err)
	}

	var inputs []model.NewDocumentInput
	for _, e := range entries {
		if e.IsDir() || !w.watched(e.Name()) {
			continue
		}
		in, err := readDocument(filepath.Join(w.dir, e.Name()))
		if err != nil {
			w.log.Warn("skipping knowledge file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	ids, err := w.sink.AddDocuments(ctx, inputs)
	w.log.Info("scanned knowledge dir", zap.Int("documents", len(ids)))
	return len(ids), err
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("watch knowledge dir: %w", err)
	}
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.watched(event.Name) {
				continue
			}
			w.handle(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Close stops a watcher that was never run.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	id := DocumentID(event.Name)
	log := w.log.With(zap.String("file", filepath.Base(event.Name)), zap.String("document_id", id))

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		in, err := readDocument(event.Name)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("failed to read knowledge file", zap.Error(err))
			}
			return
		}
		if _, err := w.sink.AddDocuments(ctx, []model.NewDocumentInput{in}); err != nil {
			log.Warn("failed to ingest knowledge file", zap.Error(err))
			return
		}
		log.Info("knowledge file ingested")

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		removed, err := w.sink.Delete(ctx, id)
		if err != nil {
			log.Warn("failed to remove knowledge document", zap.Error(err))
			return
		}
		if removed {
			log.Info("knowledge document removed")
		}
	}
}

func (w *Watcher) watched(path string) bool {
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// readDocument turns a file into a document input. A leading markdown
// heading becomes the title; otherwise the file name is used.
func readDocument(path string) (model.NewDocumentInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NewDocumentInput{}, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return model.NewDocumentInput{}, errors.New("file is empty")
	}

	name := filepath.Base(path)
	title := strings.TrimSuffix(name, filepath.Ext(name))
	if first, rest, _ := strings.Cut(text, "\n"); strings.HasPrefix(first, "# ") {
		title = strings.TrimSpace(strings.TrimPrefix(first, "# "))
		if body := strings.TrimSpace(rest); body != "" {
			text = body
		}
	}

	meta := map[string]string{
		model.MetaTitle:      title,
		model.MetaSourceType: "documentation",
		model.MetaURL:        "file://" + filepath.ToSlash(path),
	}
	if info, err := os.Stat(path); err == nil {
		meta[model.MetaTimestamp] = info.ModTime().UTC().Format(time.RFC3339)
	}

	return model.NewDocumentInput{ID: DocumentID(path), Text: text, Metadata: meta}, nil
}
