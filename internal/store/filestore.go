package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"actionsync/internal/action"
)

// FileStore is a durable Store, adapted from the teacher's WAL + snapshot
// pair (internal/store/wal.go and internal/store/snapshot.go): every
// mutation is applied to the in-memory index and then appended (and
// fsynced) to the WAL before the call returns; if the WAL append fails the
// in-memory change is not rolled back. Snapshot
// compacts the WAL away the same way the teacher's Store.Snapshot does.
// It satisfies the same Store contract as Memory and is exercised by the
// same conformance suite.
type FileStore struct {
	mu      sync.Mutex
	mem     *Memory
	wal     *wal
	dataDir string
}

// NewFileStore opens or creates a durable store rooted at dataDir: it
// loads the latest snapshot, opens the WAL, and replays any entries
// written after that snapshot — the teacher's New() startup sequence,
// unchanged in shape.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fs := &FileStore{mem: NewMemory(), dataDir: dataDir}

	if err := fs.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	w, err := newWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	fs.wal = w

	if err := fs.replayWAL(); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	return fs, nil
}

func (fs *FileStore) Add(ctx context.Context, act action.Action, meta action.Meta) (action.Meta, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stored, ok, err := fs.mem.Add(ctx, act, meta)
	if err != nil || !ok {
		return stored, ok, err
	}
	if err := fs.wal.append(walEntry{Op: walOpPut, Action: act, Meta: stored}); err != nil {
		return action.Meta{}, false, fmt.Errorf("wal append: %w", err)
	}
	return stored, true, nil
}

func (fs *FileStore) ByID(ctx context.Context, id action.Id) (action.Action, action.Meta, bool, error) {
	return fs.mem.ByID(ctx, id)
}

func (fs *FileStore) Has(ctx context.Context, id action.Id) (bool, error) {
	return fs.mem.Has(ctx, id)
}

func (fs *FileStore) Remove(ctx context.Context, id action.Id) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.mem.Remove(ctx, id); err != nil {
		return err
	}
	return fs.wal.append(walEntry{Op: walOpRemove, Meta: action.Meta{ID: id}})
}

func (fs *FileStore) ChangeMeta(ctx context.Context, id action.Id, diff map[string]any) (action.Meta, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	meta, ok, err := fs.mem.ChangeMeta(ctx, id, diff)
	if err != nil || !ok {
		return meta, ok, err
	}
	act, _, _, _ := fs.mem.ByID(ctx, id)
	if err := fs.wal.append(walEntry{Op: walOpPut, Action: act, Meta: meta}); err != nil {
		return action.Meta{}, false, fmt.Errorf("wal append: %w", err)
	}
	return meta, true, nil
}

func (fs *FileStore) Get(ctx context.Context, order Order) (Page, error) {
	return fs.mem.Get(ctx, order)
}

func (fs *FileStore) LastAdded(ctx context.Context) (int64, error) {
	return fs.mem.LastAdded(ctx)
}

func (fs *FileStore) LastSynced(ctx context.Context, peer string) (SyncCursor, error) {
	return fs.mem.LastSynced(ctx, peer)
}

func (fs *FileStore) SetLastSynced(ctx context.Context, peer string, cursor SyncCursor) error {
	return fs.mem.SetLastSynced(ctx, peer, cursor)
}

// Snapshot writes the full in-memory index to disk and truncates the WAL,
// exactly the teacher's "copy under read lock, write to a temp file,
// atomic rename, then truncate" sequence.
func (fs *FileStore) Snapshot(ctx context.Context) error {
	fs.mu.Lock()
	page, err := fs.mem.Get(ctx, OrderAdded)
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	path := filepath.Join(fs.dataDir, "snapshot.json")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(page.Entries); err != nil {
		f.Close()
		return err
	}
	f.Close()

	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.wal.truncate()
}

func (fs *FileStore) loadSnapshot() error {
	path := filepath.Join(fs.dataDir, "snapshot.json")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var entries []Entry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return err
	}
	for _, e := range entries {
		fs.mem.restore(e.Action, e.Meta)
	}
	return nil
}

// replayWAL applies every recorded mutation directly to memory without
// re-writing it, the same "rebuild memory only" discipline the teacher's
// replayWAL documents.
func (fs *FileStore) replayWAL() error {
	entries, err := fs.wal.readAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Op {
		case walOpPut:
			fs.mem.restore(e.Action, e.Meta)
		case walOpRemove:
			fs.mem.forget(e.Meta.ID)
		}
	}
	return nil
}

// Close closes the underlying WAL file. Call during shutdown.
func (fs *FileStore) Close() error {
	return fs.wal.close()
}
