package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sync"

	"github.com/caiofmp/tgram/internal/bus"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const retryBase = 500 * time.Millisecond

// FetchResult is delivered to every caller waiting on a download.
type FetchResult struct {
	Attachment store.Attachment
	Err        error
}

// StoreResult is delivered to the caller of an upload.
type StoreResult struct {
	FileID int64
	Err    error
}

type downloadTask struct {
	fileID int64
	chatID int64
	name   string
}

type uploadTask struct {
	path   string
	chatID int64
	result chan StoreResult
}

// Manager owns the on-disk media cache: a bounded worker pool for
// downloads and uploads, an SQLite index, and the TTL eviction sweep.
// Bytes for a given file id are written once and then immutable, so
// readers may open Ready paths while unrelated transfers run.
type Manager struct {
	db      *DB
	gw      gateway.Transferer
	bus     *bus.Bus
	logger  *zap.Logger
	root    string
	cfg     config.CacheConfig
	limiter *rate.Limiter

	mu      sync.Mutex
	waiters map[int64][]chan FetchResult

	downloads chan downloadTask
	uploads   chan uploadTask
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a cache manager rooted at the given directory.
func NewManager(db *DB, gw gateway.Transferer, b *bus.Bus, logger *zap.Logger, root string, cfg config.CacheConfig) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:        db,
		gw:        gw,
		bus:       b,
		logger:    logger,
		root:      root,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.TransfersPerSecond), 1),
		waiters:   make(map[int64][]chan FetchResult),
		downloads: make(chan downloadTask, 256),
		uploads:   make(chan uploadTask, 64),
	}
}

// Start launches the transfer worker pool.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for range m.cfg.DownloadWorkers {
		m.wg.Add(1)
		go m.downloadWorker(ctx)
	}
	for range m.cfg.UploadWorkers {
		m.wg.Add(1)
		go m.uploadWorker(ctx)
	}
}

// Stop cancels the workers and waits for them to drain.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Fetch requests a download. Concurrent fetches for the same file id share
// one transfer; every caller receives the result on its own channel. A file
// already Ready on disk resolves immediately.
func (m *Manager) Fetch(fileID, chatID int64, name string) <-chan FetchResult {
	ch := make(chan FetchResult, 1)

	entry, err := m.db.GetEntry(fileID)
	if err == nil && entry != nil && entry.Status == store.FileReady {
		if _, statErr := os.Stat(entry.LocalPath); statErr == nil {
			now := time.Now()
			_ = m.db.TouchEntry(fileID, now)
			entry.LastAccess = now
			ch <- FetchResult{Attachment: *entry}
			return ch
		}
		// Index says ready but file is gone; refetch.
	}

	m.mu.Lock()
	m.waiters[fileID] = append(m.waiters[fileID], ch)
	first := len(m.waiters[fileID]) == 1
	m.mu.Unlock()

	if !first {
		return ch
	}

	_ = m.db.UpsertEntry(&store.Attachment{
		FileID:     fileID,
		ChatID:     chatID,
		LocalPath:  m.entryPath(chatID, fileID, name),
		Status:     store.FileFetching,
		LastAccess: time.Now(),
	})

	select {
	case m.downloads <- downloadTask{fileID: fileID, chatID: chatID, name: name}:
	default:
		m.logger.Warn("download queue full", zap.Int64("file_id", fileID))
		m.resolve(fileID, FetchResult{Err: &gateway.TransferError{FileID: fileID, Err: fmt.Errorf("download queue full")}})
	}
	return ch
}

// Store requests an upload of a local file.
func (m *Manager) Store(path string, chatID int64) <-chan StoreResult {
	ch := make(chan StoreResult, 1)
	select {
	case m.uploads <- uploadTask{path: path, chatID: chatID, result: ch}:
	default:
		ch <- StoreResult{Err: &gateway.TransferError{Err: fmt.Errorf("upload queue full")}}
	}
	return ch
}

// Touch refreshes a file's last-access time, e.g. when the viewport shows it.
func (m *Manager) Touch(fileID int64) {
	_ = m.db.TouchEntry(fileID, time.Now())
}

// Evict removes entries whose last access exceeds the retention window,
// skipping anything referenced by the active viewport and anything
// mid-transfer. A retention of zero days keeps everything forever.
func (m *Manager) Evict(inView func(fileID int64) bool) (int, error) {
	if m.cfg.KeepMediaDays == 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -m.cfg.KeepMediaDays)
	entries, err := m.db.ListAccessedBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if inView != nil && inView(e.FileID) {
			continue
		}
		if err := os.Remove(e.LocalPath); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("evict: remove file", zap.String("path", e.LocalPath), zap.Error(err))
			continue
		}
		if err := m.db.DeleteEntry(e.FileID); err != nil {
			m.logger.Warn("evict: delete entry", zap.Int64("file_id", e.FileID), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("cache evicted", zap.Int("entries", removed))
	}
	return removed, nil
}

func (m *Manager) entryPath(chatID, fileID int64, name string) string {
	return filepath.Join(m.root, strconv.FormatInt(chatID, 10),
		strconv.FormatInt(fileID, 10)+filepath.Ext(name))
}

func (m *Manager) resolve(fileID int64, res FetchResult) {
	m.mu.Lock()
	chans := m.waiters[fileID]
	delete(m.waiters, fileID)
	m.mu.Unlock()
	for _, ch := range chans {
		ch <- res
	}
}

func (m *Manager) downloadWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case task := <-m.downloads:
			m.runDownload(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runDownload(ctx context.Context, task downloadTask) {
	dest := m.entryPath(task.chatID, task.fileID, task.name)
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		m.fail(task.fileID, err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < m.cfg.RetryAttempts; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			m.fail(task.fileID, err)
			return
		}
		size, err := m.gw.DownloadFile(ctx, task.fileID, dest)
		if err == nil {
			att := store.Attachment{
				FileID:     task.fileID,
				ChatID:     task.chatID,
				LocalPath:  dest,
				Size:       size,
				Status:     store.FileReady,
				LastAccess: time.Now(),
			}
			_ = m.db.UpsertEntry(&att)
			m.logger.Info("file downloaded",
				zap.Int64("file_id", task.fileID),
				zap.Int64("size", size))
			m.resolve(task.fileID, FetchResult{Attachment: att})
			m.bus.Publish(bus.Event{Kind: "file.updated", Payload: task.fileID})
			return
		}
		lastErr = err
		if !gateway.IsRetryable(err) {
			break
		}
		if !m.sleep(ctx, backoffDelay(attempt, err)) {
			m.fail(task.fileID, ctx.Err())
			return
		}
	}
	m.fail(task.fileID, lastErr)
}

func (m *Manager) fail(fileID int64, err error) {
	_ = m.db.SetEntryStatus(fileID, store.FileFailed)
	m.logger.Error("download failed", zap.Int64("file_id", fileID), zap.Error(err))
	m.resolve(fileID, FetchResult{Err: &gateway.TransferError{FileID: fileID, Err: err}})
	m.bus.Publish(bus.Event{Kind: "file.updated", Payload: fileID})
}

func (m *Manager) uploadWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case task := <-m.uploads:
			m.runUpload(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runUpload(ctx context.Context, task uploadTask) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.RetryAttempts; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			task.result <- StoreResult{Err: err}
			return
		}
		fileID, err := m.gw.UploadFile(ctx, task.path)
		if err == nil {
			info, _ := os.Stat(task.path)
			var size int64
			if info != nil {
				size = info.Size()
			}
			_ = m.db.UpsertEntry(&store.Attachment{
				FileID:     fileID,
				ChatID:     task.chatID,
				LocalPath:  task.path,
				Size:       size,
				Status:     store.FileReady,
				LastAccess: time.Now(),
			})
			m.logger.Info("file uploaded", zap.Int64("file_id", fileID), zap.String("path", task.path))
			task.result <- StoreResult{FileID: fileID}
			m.bus.Publish(bus.Event{Kind: "file.updated", Payload: fileID})
			return
		}
		lastErr = err
		if !gateway.IsRetryable(err) {
			break
		}
		if !m.sleep(ctx, backoffDelay(attempt, err)) {
			task.result <- StoreResult{Err: ctx.Err()}
			return
		}
	}
	m.logger.Error("upload failed", zap.String("path", task.path), zap.Error(lastErr))
	task.result <- StoreResult{Err: lastErr}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay doubles per attempt, but a server-provided rate-limit hint
// always wins.
func backoffDelay(attempt int, err error) time.Duration {
	if hint := gateway.RetryDelayHint(err); hint > 0 {
		return hint
	}
	return retryBase << attempt
}
