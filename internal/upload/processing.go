package upload

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// runBatch processes pending items strictly in submission order, one at a
// time. The cancellation flag is polled between items only; an in-flight
// item always settles.
func (m *Manager) runBatch(ctx context.Context, pending []string) {
	start := time.Now()
	for i, itemID := range pending {
		if m.batchCancelled() || ctx.Err() != nil {
			m.markCancelled(pending[i:])
			log.Info().Int("skipped", len(pending)-i).Msg("batch cancelled")
			break
		}
		m.runItem(ctx, itemID)
		m.mu.Lock()
		m.batchDone++
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.uploading = false
	m.cancelled = false
	done, total := m.batchDone, m.batchTotal
	m.mu.Unlock()
	log.Info().Int("done", done).Int("total", total).Dur("elapsed", time.Since(start)).Msg("batch finished")
}

// runItem runs the pipeline for one item and settles it as ready or error.
// A sibling item's failure never propagates past this function.
func (m *Manager) runItem(ctx context.Context, itemID string) {
	m.mu.RLock()
	it, ok := m.index[itemID]
	if !ok {
		m.mu.RUnlock()
		return
	}
	name := it.FileName
	source := it.source
	origSize := it.origSize
	m.mu.RUnlock()

	if origSize > m.opts.MaxFileSize {
		m.settleError(itemID, oversizeMessage(name, origSize, m.opts.MaxFileSize))
		return
	}
	if len(source) == 0 {
		// items restored from a previous run lose their original payload
		m.settleError(itemID, "original payload is no longer available")
		return
	}

	res, err := m.process(ctx, name, source)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.markCancelled([]string{itemID})
			return
		}
		m.settleError(itemID, err.Error())
		return
	}

	// metadata is attached first so the payload filename carries dimensions
	m.mu.Lock()
	it, ok = m.index[itemID]
	if !ok {
		m.mu.Unlock()
		return // removed while processing
	}
	meta := res.Meta
	it.Metadata = &meta
	snap := snapshot(it)
	m.mu.Unlock()

	path, err := m.store.SavePayload(context.Background(), &snap, res.Payload)
	if err != nil {
		m.settleError(itemID, "failed to store processed image: "+err.Error())
		return
	}

	m.mu.Lock()
	it, ok = m.index[itemID]
	if !ok {
		// removed mid-save; release the orphaned payload
		m.mu.Unlock()
		_ = m.store.RemoveItem(context.Background(), itemID)
		return
	}
	it.Status = StatusReady
	it.Progress = 100
	it.DisplayPath = path
	it.Error = ""
	it.source = nil
	snap = snapshot(it)
	m.mu.Unlock()

	m.persist(snap)
	log.Info().
		Str("item_id", itemID).
		Str("file", name).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Msg("item ready")
}

// settleError moves an item to error state with a human-readable message.
// Metadata and the display handle are cleared to keep status invariants.
func (m *Manager) settleError(itemID, msg string) {
	m.mu.Lock()
	it, ok := m.index[itemID]
	if !ok {
		m.mu.Unlock()
		return
	}
	it.Status = StatusError
	it.Error = msg
	it.Metadata = nil
	it.DisplayPath = ""
	snap := snapshot(it)
	m.mu.Unlock()

	m.persist(snap)
	log.Warn().Str("item_id", itemID).Str("file", snap.FileName).Str("reason", msg).Msg("item failed")
}

// markCancelled moves still-loading items to the cancelled terminal state.
func (m *Manager) markCancelled(itemIDs []string) {
	for _, id := range itemIDs {
		m.mu.Lock()
		it, ok := m.index[id]
		if !ok || it.Status != StatusLoading {
			m.mu.Unlock()
			continue
		}
		it.Status = StatusCancelled
		it.Error = ""
		snap := snapshot(it)
		m.mu.Unlock()
		m.persist(snap)
	}
}

func (m *Manager) batchCancelled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelled
}
