package changemgr

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"weak"

	"github.com/crrserver/core/internal/changeset"
)

// gcInterval is the garbage-collection sweep period (§5: "the only internal timer").
const gcInterval = 240 * time.Second

// Registry is the Change Manager: a process-wide mapping from database name to
// DatabaseHandle, protected by a read-write mutex. The hot path (Subscribe against an
// existing handle) only takes the read lock.
type Registry struct {
	dataDir string
	logger  *slog.Logger

	mu      sync.RWMutex
	handles map[string]*DatabaseHandle

	stopOnce sync.Once
	stopGC   chan struct{}
}

// NewRegistry constructs the registry and starts its background GC sweep. The sweep holds
// only a weak.Pointer to the Registry, so once the registry is no longer reachable from
// anywhere else (and Close has not already stopped it), the sweep self-terminates on its
// next tick rather than leaking a goroutine forever.
func NewRegistry(dataDir string, logger *slog.Logger) *Registry {
	r := &Registry{
		dataDir: dataDir,
		logger:  logger,
		handles: map[string]*DatabaseHandle{},
		stopGC:  make(chan struct{}),
	}
	weakSelf := weak.Make(r)
	go runGC(weakSelf, r.stopGC)
	return r
}

func runGC(weakRegistry weak.Pointer[Registry], stop <-chan struct{}) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r := weakRegistry.Value()
			if r == nil {
				return
			}
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, handle := range r.handles {
		if handle.IsOrphan() {
			handle.stopPublisher()
			delete(r.handles, name)
			if r.logger != nil {
				r.logger.Debug("gc removed idle database handle", slog.String("database", name))
			}
		}
	}
}

// Subscribe implements §4.D's subscribe contract: a read-locked lookup, then a write-lock
// upgrade with a second race-lookup before creating a new handle.
func (r *Registry) Subscribe(ctx context.Context, dbName string) (*Subscription, error) {
	r.mu.RLock()
	if handle, ok := r.handles[dbName]; ok {
		sub := handle.Subscribe()
		r.mu.RUnlock()
		return sub, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[dbName]; ok {
		return handle.Subscribe(), nil
	}

	handle, sub, err := addHandle(ctx, r.dataDir, dbName, r.logger)
	if err != nil {
		return nil, err
	}
	r.handles[dbName] = handle
	return sub, nil
}

// PublishMigration looks up the handle and broadcasts a Migration message. A missing handle
// (no current subscribers) is not an error: the publish is best-effort.
func (r *Registry) PublishMigration(dbName string, migration changeset.Migration) {
	r.mu.RLock()
	handle, ok := r.handles[dbName]
	r.mu.RUnlock()
	if !ok {
		return
	}
	handle.broadcast(migrationMessage(migration))
}

// KillConnection removes dbName's handle, closing every open subscriber's channel so their
// next receive observes end-of-stream. Used by a destructive admin action that must
// invalidate open readers (the legacy path §4.D documents).
func (r *Registry) KillConnection(dbName string) {
	r.mu.Lock()
	handle, ok := r.handles[dbName]
	if ok {
		delete(r.handles, dbName)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.logger != nil {
		r.logger.Info("killing open streams", slog.String("database", dbName), slog.Int("connections", handle.ConnectionCount()))
	}
	handle.stopPublisher()
	handle.closeAll()
}

// Close stops the GC sweep and every publisher task. Safe to call once during graceful
// shutdown; subsequent calls are no-ops.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopGC)
		r.mu.Lock()
		defer r.mu.Unlock()
		for name, handle := range r.handles {
			handle.stopPublisher()
			handle.closeAll()
			delete(r.handles, name)
		}
	})
}
