package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caiofmp/tgram/internal/bus"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
)

// countingTransferer counts downloads and can block them on a gate, which
// lets tests observe in-flight deduplication.
type countingTransferer struct {
	calls int32
	gate  chan struct{}
	err   error
}

func (c *countingTransferer) DownloadFile(ctx context.Context, fileID int64, dest string) (int64, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if c.err != nil {
		return 0, c.err
	}
	body := fmt.Sprintf("payload %d", fileID)
	if err := os.WriteFile(dest, []byte(body), 0600); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (c *countingTransferer) UploadFile(ctx context.Context, path string) (int64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return 9001, nil
}

func newTestManager(t *testing.T, gw gateway.Transferer, cfg config.CacheConfig) (*Manager, *DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := NewManager(db, gw, bus.New(), nil, filepath.Join(dir, "files"), cfg)
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m, db
}

func testCacheConfig() config.CacheConfig {
	cfg := config.Default().Cache
	cfg.TransfersPerSecond = 1000
	return cfg
}

func waitFetch(t *testing.T, ch <-chan FetchResult) FetchResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not resolve")
		return FetchResult{}
	}
}

func TestFetchDownloadsAndIndexes(t *testing.T) {
	m, db := newTestManager(t, gateway.NewMemory(), testCacheConfig())

	res := waitFetch(t, m.Fetch(42, 7, "photo.jpg"))
	if res.Err != nil {
		t.Fatalf("fetch: %v", res.Err)
	}
	if res.Attachment.Status != store.FileReady {
		t.Fatalf("status = %q, want ready", res.Attachment.Status)
	}
	body, err := os.ReadFile(res.Attachment.LocalPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(body) != "file 42" {
		t.Fatalf("body = %q", body)
	}
	if filepath.Ext(res.Attachment.LocalPath) != ".jpg" {
		t.Fatalf("path %q lost extension", res.Attachment.LocalPath)
	}

	entry, err := db.GetEntry(42)
	if err != nil || entry == nil {
		t.Fatalf("index entry: %v %v", entry, err)
	}
	if entry.Status != store.FileReady || entry.ChatID != 7 {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestFetchDeduplicatesInFlight(t *testing.T) {
	tr := &countingTransferer{gate: make(chan struct{})}
	m, _ := newTestManager(t, tr, testCacheConfig())

	chans := make([]<-chan FetchResult, 3)
	for i := range chans {
		chans[i] = m.Fetch(5, 1, "clip.mp4")
	}
	close(tr.gate)

	for _, ch := range chans {
		res := waitFetch(t, ch)
		if res.Err != nil {
			t.Fatalf("fetch: %v", res.Err)
		}
	}
	if n := atomic.LoadInt32(&tr.calls); n != 1 {
		t.Fatalf("downloads = %d, want 1", n)
	}
}

func TestFetchHitsDiskWithoutTransfer(t *testing.T) {
	tr := &countingTransferer{}
	m, _ := newTestManager(t, tr, testCacheConfig())

	if res := waitFetch(t, m.Fetch(5, 1, "doc.pdf")); res.Err != nil {
		t.Fatalf("first fetch: %v", res.Err)
	}
	if res := waitFetch(t, m.Fetch(5, 1, "doc.pdf")); res.Err != nil {
		t.Fatalf("second fetch: %v", res.Err)
	}
	if n := atomic.LoadInt32(&tr.calls); n != 1 {
		t.Fatalf("downloads = %d, want 1", n)
	}
}

func TestFetchRetriesTransientThenFails(t *testing.T) {
	tr := &countingTransferer{err: &gateway.TransientError{Err: errors.New("flaky link")}}
	cfg := testCacheConfig()
	cfg.RetryAttempts = 2
	m, db := newTestManager(t, tr, cfg)

	res := waitFetch(t, m.Fetch(9, 1, "voice.ogg"))
	if res.Err == nil {
		t.Fatal("expected failure")
	}
	var terr *gateway.TransferError
	if !errors.As(res.Err, &terr) || terr.FileID != 9 {
		t.Fatalf("err = %v, want TransferError for file 9", res.Err)
	}
	if n := atomic.LoadInt32(&tr.calls); n != 2 {
		t.Fatalf("downloads = %d, want 2", n)
	}
	entry, err := db.GetEntry(9)
	if err != nil || entry == nil {
		t.Fatalf("index entry: %v %v", entry, err)
	}
	if entry.Status != store.FileFailed {
		t.Fatalf("status = %q, want failed", entry.Status)
	}
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	tr := &countingTransferer{err: gateway.ErrValidation}
	cfg := testCacheConfig()
	cfg.RetryAttempts = 5
	m, _ := newTestManager(t, tr, cfg)

	res := waitFetch(t, m.Fetch(3, 1, "sticker.webp"))
	if res.Err == nil {
		t.Fatal("expected failure")
	}
	if n := atomic.LoadInt32(&tr.calls); n != 1 {
		t.Fatalf("downloads = %d, want 1", n)
	}
}

func TestStoreUploads(t *testing.T) {
	m, db := newTestManager(t, gateway.NewMemory(), testCacheConfig())

	src := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(src, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	var res StoreResult
	select {
	case res = <-m.Store(src, 7):
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not resolve")
	}
	if res.Err != nil {
		t.Fatalf("store: %v", res.Err)
	}
	if res.FileID == 0 {
		t.Fatal("no file id assigned")
	}
	entry, err := db.GetEntry(res.FileID)
	if err != nil || entry == nil {
		t.Fatalf("index entry: %v %v", entry, err)
	}
	if entry.Size != 5 || entry.LocalPath != src {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestEvictHonorsRetentionViewportAndTransfers(t *testing.T) {
	m, db := newTestManager(t, gateway.NewMemory(), testCacheConfig())

	dir := t.TempDir()
	old := time.Now().AddDate(0, 0, -30)
	put := func(id int64, status store.FileStatus, access time.Time) string {
		path := filepath.Join(dir, fmt.Sprintf("%d.bin", id))
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := db.UpsertEntry(&store.Attachment{
			FileID: id, ChatID: 1, LocalPath: path,
			Status: status, LastAccess: access,
		}); err != nil {
			t.Fatal(err)
		}
		return path
	}

	stalePath := put(1, store.FileReady, old)
	viewedPath := put(2, store.FileReady, old)
	put(3, store.FileFetching, old)
	freshPath := put(4, store.FileReady, time.Now())

	removed, err := m.Evict(func(fileID int64) bool { return fileID == 2 })
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatal("stale file should be gone")
	}
	for _, path := range []string{viewedPath, freshPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should survive: %v", path, err)
		}
	}
	if entry, _ := db.GetEntry(1); entry != nil {
		t.Fatal("stale index entry should be gone")
	}
	if entry, _ := db.GetEntry(3); entry == nil {
		t.Fatal("mid-transfer entry should survive")
	}
}

func TestEvictRetentionDisabled(t *testing.T) {
	cfg := testCacheConfig()
	cfg.KeepMediaDays = 0
	m, db := newTestManager(t, gateway.NewMemory(), cfg)

	path := filepath.Join(t.TempDir(), "keep.bin")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertEntry(&store.Attachment{
		FileID: 1, ChatID: 1, LocalPath: path,
		Status: store.FileReady, LastAccess: time.Now().AddDate(-1, 0, 0),
	}); err != nil {
		t.Fatal(err)
	}

	removed, err := m.Evict(nil)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should survive: %v", err)
	}
}
