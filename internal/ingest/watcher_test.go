package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/shop-assistant/internal/corpus"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "returns.md", "# Return Policy\n\nBuyers can return items within 30 days.\n")
	in, err := readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "file:returns.md", in.ID)
	assert.Equal(t, "Return Policy", in.Metadata[model.MetaTitle])
	assert.Equal(t, "Buyers can return items within 30 days.", in.Text)

	path = writeFile(t, dir, "fees.txt", "Commission is charged per order.")
	in, err = readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "fees", in.Metadata[model.MetaTitle])

	path = writeFile(t, dir, "blank.txt", "   \n")
	_, err = readDocument(path)
	assert.Error(t, err)
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# A\nalpha")
	writeFile(t, dir, "b.txt", "bravo")
	writeFile(t, dir, "c.pdf", "ignored")
	writeFile(t, dir, "d.txt", "")

	store := corpus.NewStore(logger.NewNop())
	w, err := NewWatcher(dir, store, logger.NewNop())
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Len())
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	store := corpus.NewStore(logger.NewNop())
	w, err := NewWatcher(dir, store, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	require.Eventually(t, func() bool {
		writeFile(t, dir, "shipping.md", "# Shipping\nOrders ship in 2 days.")
		_, ok := store.Get("file:shipping.md")
		return ok
	}, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "shipping.md")))
	require.Eventually(t, func() bool {
		_, ok := store.Get("file:shipping.md")
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}
