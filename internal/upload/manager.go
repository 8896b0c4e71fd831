package upload

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"photoflow/internal/imgproc"
)

// ProcessFunc transforms one file into a displayable payload plus metadata.
// The default is the imgproc pipeline; tests inject fakes.
type ProcessFunc func(ctx context.Context, name string, data []byte) (*imgproc.Result, error)

// Manager tracks the photo collection and drives batch ingestion. It is the
// single writer of item state; readers get snapshot copies.
type Manager struct {
	mu          sync.RWMutex
	items       []*Item // submission order
	index       map[string]*Item
	opts        Options
	allowedExts map[string]struct{}
	store       ItemStore
	process     ProcessFunc

	uploading  bool
	cancelled  bool
	batchDone  int
	batchTotal int

	workersWG sync.WaitGroup
	baseCtx   context.Context
}

// NewManager creates a manager with default options suitable for tests.
func NewManager() *Manager {
	return NewManagerWithOptions(Options{
		DataDir:     "data",
		MaxItems:    defaultMaxItems,
		MaxFileSize: defaultMaxFileSize,
	})
}

// NewManagerWithOptions creates a manager with provided configuration.
func NewManagerWithOptions(opts Options) *Manager {
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif", ".heic", ".heif"}
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	pipeline := imgproc.NewPipeline(opts.MaxEdge, opts.JPEGQuality)
	return &Manager{
		items:       make([]*Item, 0, opts.MaxItems),
		index:       make(map[string]*Item),
		opts:        opts,
		allowedExts: allowed,
		store:       NewFileStore(opts.DataDir),
		process:     pipeline.Process,
		baseCtx:     context.Background(),
	}
}

// Submit filters the batch to recognized image files, clamps it to the free
// capacity, registers every accepted file as a loading item synchronously and
// starts sequential background processing. A batch that filters down to zero
// files is dropped silently (nil, nil).
func (m *Manager) Submit(files []IncomingFile) ([]Item, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	accepted := make([]IncomingFile, 0, len(files))
	for _, f := range files {
		if m.isRecognized(f) {
			accepted = append(accepted, f)
		}
	}
	if len(accepted) == 0 {
		log.Info().Int("submitted", len(files)).Msg("no recognized image files in batch")
		return nil, nil
	}

	m.mu.Lock()
	if m.uploading {
		m.mu.Unlock()
		return nil, ErrBatchInFlight
	}
	free := m.opts.MaxItems - len(m.items)
	if free <= 0 {
		m.mu.Unlock()
		log.Warn().Int("max_items", m.opts.MaxItems).Msg("collection full, batch dropped")
		return nil, nil
	}
	if len(accepted) > free {
		log.Warn().Int("accepted", len(accepted)).Int("free", free).Msg("batch clamped to free capacity")
		accepted = accepted[:free]
	}

	registered := make([]Item, 0, len(accepted))
	pending := make([]string, 0, len(accepted))
	settled := 0
	for _, f := range accepted {
		size := f.Size
		if size == 0 {
			size = int64(len(f.Data))
		}
		it := &Item{
			ID:        uuid.NewString(),
			FileName:  f.Name,
			Status:    StatusLoading,
			CreatedAt: time.Now(),
			source:    f.Data,
			origSize:  size,
		}
		// oversize files settle immediately, no decode is ever attempted
		if size > m.opts.MaxFileSize {
			it.Status = StatusError
			it.Error = oversizeMessage(f.Name, size, m.opts.MaxFileSize)
			settled++
		} else {
			pending = append(pending, it.ID)
		}
		m.items = append(m.items, it)
		m.index[it.ID] = it
		registered = append(registered, snapshot(it))
	}
	m.uploading = true
	m.cancelled = false
	m.batchTotal = len(accepted)
	m.batchDone = settled
	ctx := m.baseCtx
	m.mu.Unlock()

	for i := range registered {
		m.persist(registered[i])
	}
	log.Info().Int("registered", len(registered)).Int("pending", len(pending)).Msg("batch accepted")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.runBatch(ctx, pending)
	}()
	return registered, nil
}

// isRecognized accepts a file when its extension is allowed, or when content
// sniffing maps it to an allowed image type (extension-less uploads).
func (m *Manager) isRecognized(f IncomingFile) bool {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if _, ok := m.allowedExts[ext]; ok {
		return true
	}
	if len(f.Data) == 0 {
		return false
	}
	sniffed := mimetype.Detect(f.Data)
	_, ok := m.allowedExts[sniffed.Extension()]
	return ok
}

// Retry reruns the pipeline for an item in error or cancelled state.
func (m *Manager) Retry(itemID string) (Item, error) {
	m.mu.Lock()
	it, ok := m.index[itemID]
	if !ok {
		m.mu.Unlock()
		return Item{}, ErrItemNotFound
	}
	if it.Status != StatusError && it.Status != StatusCancelled {
		snap := snapshot(it)
		m.mu.Unlock()
		return snap, ErrNotRetryable
	}
	it.Status = StatusLoading
	it.Error = ""
	it.Metadata = nil
	it.DisplayPath = ""
	it.Progress = 0
	snap := snapshot(it)
	ctx := m.baseCtx
	m.mu.Unlock()

	m.persist(snap)
	log.Info().Str("item_id", itemID).Msg("item retry requested")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.runItem(ctx, itemID)
	}()
	return snap, nil
}

// Remove invalidates the item's browsable handle and drops it from the
// collection.
func (m *Manager) Remove(itemID string) error {
	m.mu.Lock()
	if _, ok := m.index[itemID]; !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	delete(m.index, itemID)
	kept := m.items[:0]
	for _, it := range m.items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	m.items = kept
	m.mu.Unlock()

	log.Info().Str("item_id", itemID).Msg("item removed")
	return m.store.RemoveItem(context.Background(), itemID)
}

// Clear invalidates all handles and empties the collection.
func (m *Manager) Clear() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.items))
	for _, it := range m.items {
		ids = append(ids, it.ID)
	}
	m.items = m.items[:0]
	m.index = make(map[string]*Item)
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.store.RemoveItem(context.Background(), id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	log.Info().Int("removed", len(ids)).Msg("collection cleared")
	return firstErr
}

// Cancel requests cooperative cancellation of the in-flight batch. The
// sequential loop checks the flag between items; the current item finishes.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.uploading {
		m.cancelled = true
		log.Info().Msg("batch cancellation requested")
	}
	m.mu.Unlock()
}

// GetItem returns a snapshot of one item.
func (m *Manager) GetItem(itemID string) (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.index[itemID]
	if !ok {
		return Item{}, false
	}
	return snapshot(it), true
}

// Items returns snapshots of the whole collection in submission order.
func (m *Manager) Items() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, snapshot(it))
	}
	return out
}

// ReadyItems returns the ready subset, the input of the downstream editor.
func (m *Manager) ReadyItems() []Item {
	return m.filtered(StatusReady)
}

// FailedItems returns the error subset.
func (m *Manager) FailedItems() []Item {
	return m.filtered(StatusError)
}

func (m *Manager) filtered(status Status) []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.Status == status {
			out = append(out, snapshot(it))
		}
	}
	return out
}

// Count reports the number of tracked items.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// AllReady is true iff the collection is non-empty and every item is ready.
func (m *Manager) AllReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.items) == 0 {
		return false
	}
	for _, it := range m.items {
		if it.Status != StatusReady {
			return false
		}
	}
	return true
}

// HasFailed reports whether any item is in error state.
func (m *Manager) HasFailed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.Status == StatusError {
			return true
		}
	}
	return false
}

// IsProcessing reports whether any item is still loading.
func (m *Manager) IsProcessing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.Status == StatusLoading {
			return true
		}
	}
	return false
}

// IsUploading reports whether a submitted batch is still being worked.
func (m *Manager) IsUploading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploading
}

// Progress reports batch completion as a percentage, informational only.
func (m *Manager) Progress() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.batchTotal == 0 {
		return 0
	}
	return m.batchDone * 100 / m.batchTotal
}

// SetBaseContext sets the context that bounds background processing.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UseProcessor allows tests to inject a fake pipeline.
// Intended for test setup only, before any batch is submitted.
func (m *Manager) UseProcessor(fn ProcessFunc) {
	m.mu.Lock()
	m.process = fn
	m.mu.Unlock()
}

func (m *Manager) persist(snap Item) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveItem(context.Background(), &snap); err != nil {
		log.Warn().Str("item_id", snap.ID).Err(err).Msg("persist item failed")
	}
}

// snapshot copies an item for readers, without the source payload.
func snapshot(it *Item) Item {
	c := *it
	c.source = nil
	if it.Metadata != nil {
		meta := *it.Metadata
		c.Metadata = &meta
	}
	return c
}
