package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"photoflow/internal/imgproc"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManagerWithOptions(Options{
		DataDir:     t.TempDir(),
		MaxItems:    10,
		MaxFileSize: 1 << 20, // 1 MiB keeps oversize tests cheap
	})
}

// fakeProcessor settles every file as a 2048x1536 landscape photo.
func fakeProcessor(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
	payload := []byte("processed:" + name)
	return &imgproc.Result{
		Payload: payload,
		Width:   2048,
		Height:  1536,
		Meta: imgproc.Metadata{
			Width:       2048,
			Height:      1536,
			AspectRatio: 2048.0 / 1536.0,
			IsLandscape: true,
			SizeBytes:   int64(len(data)),
			FileName:    name,
		},
	}, nil
}

func incoming(name string, size int) IncomingFile {
	data := bytes.Repeat([]byte{0xAB}, size)
	return IncomingFile{Name: name, Size: int64(size), Data: data}
}

func waitSettled(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !m.IsUploading() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for batch to settle")
}

func TestSubmitRegistersSynchronouslyThenProcesses(t *testing.T) {
	m := newTestManager(t)
	m.UseProcessor(fakeProcessor)

	registered, err := m.Submit([]IncomingFile{
		incoming("a.jpg", 100),
		incoming("b.jpg", 100),
		incoming("c.jpg", 100),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(registered) != 3 {
		t.Fatalf("expected 3 registered items, got %d", len(registered))
	}
	for _, it := range registered {
		if it.Status != StatusLoading && it.Status != StatusReady {
			t.Fatalf("item registered with status %s", it.Status)
		}
		if it.ID == "" {
			t.Fatalf("expected non-empty id")
		}
	}

	waitSettled(t, m)
	if !m.AllReady() {
		t.Fatalf("expected all items ready, got %+v", m.Items())
	}
	for _, it := range m.Items() {
		if it.DisplayPath == "" || it.Metadata == nil {
			t.Fatalf("ready item missing handle or metadata: %+v", it)
		}
		if !it.Metadata.IsLandscape || it.Metadata.Width > 2048 {
			t.Fatalf("unexpected metadata: %+v", it.Metadata)
		}
		if _, err := os.Stat(it.DisplayPath); err != nil {
			t.Fatalf("display payload missing on disk: %v", err)
		}
	}
	if m.Progress() != 100 {
		t.Fatalf("expected progress 100, got %d", m.Progress())
	}
}

func TestSubmitFiltersUnrecognizedSilently(t *testing.T) {
	m := newTestManager(t)
	m.UseProcessor(fakeProcessor)

	registered, err := m.Submit([]IncomingFile{
		{Name: "virus.exe", Data: []byte("MZ9000")},
		{Name: "notes.txt", Data: []byte("plain text here")},
	})
	if err != nil {
		t.Fatalf("expected silent drop, got error: %v", err)
	}
	if len(registered) != 0 || m.Count() != 0 {
		t.Fatalf("expected zero items, got %d registered, %d tracked", len(registered), m.Count())
	}
}

func TestSubmitRecognizesByContentSniff(t *testing.T) {
	m := newTestManager(t)
	m.UseProcessor(fakeProcessor)

	// JPEG payload without a usable extension
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	registered, err := m.Submit([]IncomingFile{{Name: "upload.bin", Data: buf.Bytes()}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(registered) != 1 {
		t.Fatalf("expected sniffed image to be accepted, got %d items", len(registered))
	}
	waitSettled(t, m)
}

func TestSubmitClampsToFreeCapacity(t *testing.T) {
	m := NewManagerWithOptions(Options{DataDir: t.TempDir(), MaxItems: 2, MaxFileSize: 1 << 20})
	m.UseProcessor(fakeProcessor)

	files := make([]IncomingFile, 0, 5)
	for i := 0; i < 5; i++ {
		files = append(files, incoming(fmt.Sprintf("p%d.jpg", i), 10))
	}
	registered, err := m.Submit(files)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(registered) != 2 || m.Count() != 2 {
		t.Fatalf("expected clamp to 2 items, got %d registered, %d tracked", len(registered), m.Count())
	}
	waitSettled(t, m)

	// collection full now: next batch is dropped silently
	registered, err = m.Submit([]IncomingFile{incoming("late.jpg", 10)})
	if err != nil || len(registered) != 0 {
		t.Fatalf("expected silent drop on full collection, got %d items, err %v", len(registered), err)
	}
}

func TestOversizeFileBecomesItemError(t *testing.T) {
	m := newTestManager(t)
	processed := 0
	m.UseProcessor(func(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
		processed++
		return fakeProcessor(ctx, name, data)
	})

	registered, err := m.Submit([]IncomingFile{
		{Name: "huge.jpg", Size: 2 << 20, Data: []byte("tiny stand-in")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(registered) != 1 {
		t.Fatalf("expected 1 registered item, got %d", len(registered))
	}
	it := registered[0]
	if it.Status != StatusError || !strings.Contains(it.Error, "exceeds the size limit") {
		t.Fatalf("expected oversize error, got %+v", it)
	}
	if it.Metadata != nil || it.DisplayPath != "" {
		t.Fatalf("error item must not carry metadata or handle: %+v", it)
	}

	waitSettled(t, m)
	if processed != 0 {
		t.Fatalf("oversize file must never reach the pipeline, got %d calls", processed)
	}
	if !m.HasFailed() {
		t.Fatalf("expected HasFailed true")
	}
}

func TestItemsProcessSequentiallyInSubmissionOrder(t *testing.T) {
	m := newTestManager(t)
	var mu sync.Mutex
	var order []string
	m.UseProcessor(func(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return fakeProcessor(ctx, name, data)
	})

	names := []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg"}
	files := make([]IncomingFile, 0, len(names))
	for _, n := range names {
		files = append(files, incoming(n, 10))
	}
	if _, err := m.Submit(files); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitSettled(t, m)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(names) {
		t.Fatalf("expected %d pipeline runs, got %d", len(names), len(order))
	}
	for i, n := range names {
		if order[i] != n {
			t.Fatalf("processing order %v does not match submission order %v", order, names)
		}
	}
}

func TestCancelMidBatchMarksRemainingCancelled(t *testing.T) {
	m := newTestManager(t)
	started := make(chan string)
	proceed := make(chan struct{})
	m.UseProcessor(func(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
		started <- name
		<-proceed
		return fakeProcessor(ctx, name, data)
	})

	files := make([]IncomingFile, 0, 5)
	for i := 1; i <= 5; i++ {
		files = append(files, incoming(fmt.Sprintf("p%d.jpg", i), 10))
	}
	if _, err := m.Submit(files); err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	proceed <- struct{}{} // item 1 settles
	<-started
	m.Cancel() // requested while item 2 is in flight
	proceed <- struct{}{}

	waitSettled(t, m)

	items := m.Items()
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, it := range items {
		want := StatusReady
		if i >= 2 {
			want = StatusCancelled
		}
		if it.Status != want {
			t.Fatalf("item %d status %s, want %s", i+1, it.Status, want)
		}
	}
}

func TestRetryOnlyFromErrorOrCancelled(t *testing.T) {
	m := newTestManager(t)
	failFirst := true
	m.UseProcessor(func(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
		if failFirst {
			failFirst = false
			return nil, errors.New("flaky decode")
		}
		return fakeProcessor(ctx, name, data)
	})

	if _, err := m.Submit([]IncomingFile{incoming("flaky.jpg", 10)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitSettled(t, m)

	failed := m.FailedItems()
	if len(failed) != 1 || failed[0].Error == "" {
		t.Fatalf("expected one failed item with message, got %+v", failed)
	}

	if _, err := m.Retry(failed[0].ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if it, ok := m.GetItem(failed[0].ID); ok && it.Status == StatusReady {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	it, _ := m.GetItem(failed[0].ID)
	if it.Status != StatusReady || it.Metadata == nil {
		t.Fatalf("expected retried item ready with metadata, got %+v", it)
	}

	// retry on a ready item is rejected and changes nothing
	before := m.Items()
	if _, err := m.Retry(it.ID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
	after := m.Items()
	if len(before) != len(after) || before[0].Status != after[0].Status {
		t.Fatalf("retry on ready item must not change the collection")
	}

	if _, err := m.Retry("missing-id"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestSubmitWhileBatchInFlightIsRejected(t *testing.T) {
	m := newTestManager(t)
	blocker := make(chan struct{})
	m.UseProcessor(func(ctx context.Context, name string, data []byte) (*imgproc.Result, error) {
		<-blocker
		return fakeProcessor(ctx, name, data)
	})

	if _, err := m.Submit([]IncomingFile{incoming("a.jpg", 10)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Submit([]IncomingFile{incoming("b.jpg", 10)}); !errors.Is(err, ErrBatchInFlight) {
		t.Fatalf("expected ErrBatchInFlight, got %v", err)
	}
	close(blocker)
	if !m.WaitAll(context.Background()) {
		t.Fatalf("expected workers to finish")
	}
}

func TestRemoveInvalidatesHandle(t *testing.T) {
	m := newTestManager(t)
	m.UseProcessor(fakeProcessor)

	if _, err := m.Submit([]IncomingFile{incoming("a.jpg", 10)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitSettled(t, m)

	items := m.Items()
	if len(items) != 1 || items[0].DisplayPath == "" {
		t.Fatalf("expected one ready item with handle, got %+v", items)
	}
	path := items[0].DisplayPath

	if err := m.Remove(items[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("expected empty collection after remove")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected payload deleted, stat err: %v", err)
	}
	if err := m.Remove("missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestClearEmptiesCollection(t *testing.T) {
	m := newTestManager(t)
	m.UseProcessor(fakeProcessor)

	if _, err := m.Submit([]IncomingFile{incoming("a.jpg", 10), incoming("b.jpg", 10)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitSettled(t, m)
	paths := make([]string, 0, 2)
	for _, it := range m.Items() {
		paths = append(paths, it.DisplayPath)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if m.Count() != 0 || m.AllReady() {
		t.Fatalf("expected empty collection, AllReady false")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected payload %s deleted", p)
		}
	}
}

func TestAllReadyFalseOnEmptyCollection(t *testing.T) {
	m := newTestManager(t)
	if m.AllReady() {
		t.Fatalf("empty collection must not report all ready")
	}
}

func TestLoadFromDiskMarksInterruptedItems(t *testing.T) {
	dataDir := t.TempDir()
	store := NewFileStore(dataDir)
	stuck := &Item{ID: "i1", FileName: "a.jpg", Status: StatusLoading, CreatedAt: time.Now().Add(-time.Minute)}
	done := &Item{ID: "i2", FileName: "b.jpg", Status: StatusReady, CreatedAt: time.Now()}
	if err := store.SaveItem(context.Background(), stuck); err != nil {
		t.Fatalf("save stuck: %v", err)
	}
	if err := store.SaveItem(context.Background(), done); err != nil {
		t.Fatalf("save done: %v", err)
	}

	m := NewManagerWithOptions(Options{DataDir: dataDir, MaxItems: 10, MaxFileSize: 1 << 20})
	if err := m.LoadFromDisk(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 restored items, got %d", m.Count())
	}
	it, ok := m.GetItem("i1")
	if !ok || it.Status != StatusError || it.Error == "" {
		t.Fatalf("expected interrupted item marked error, got %+v", it)
	}
	if it2, _ := m.GetItem("i2"); it2.Status != StatusReady {
		t.Fatalf("expected restored ready item, got %+v", it2)
	}
	// restored items lost their source; retry reports that as the error
	if _, err := m.Retry("i1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := m.GetItem("i1"); got.Status == StatusError {
			if !strings.Contains(got.Error, "no longer available") {
				t.Fatalf("unexpected retry error: %q", got.Error)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for retry to settle")
}
