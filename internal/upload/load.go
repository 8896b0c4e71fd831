package upload

import (
	"context"
	"fmt"
	"sort"
)

// LoadFromDisk restores persisted items into memory. Items that were still
// loading when the previous run stopped are marked as errors; their original
// payloads are gone, so the pipeline cannot resume them.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadItems(context.Background())
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})
	for _, it := range loaded {
		if it.Status == StatusLoading {
			it.Status = StatusError
			it.Error = "processing interrupted by restart"
			m.persist(snapshot(it))
		}
		m.mu.Lock()
		m.items = append(m.items, it)
		m.index[it.ID] = it
		m.mu.Unlock()
	}
	return nil
}
