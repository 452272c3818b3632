package changemgr

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/database"
	"github.com/crrserver/core/internal/permission"
)

// subscriberBufferSize is the broadcast channel capacity per subscriber (§5 backpressure:
// "the broadcast channel has capacity 32").
const subscriberBufferSize = 32

// subscriber is one registered receiver on a DatabaseHandle's fan-out.
type subscriber struct {
	ch chan Message
}

// signalHolder is the object the publisher task owns a strong reference to, and the update
// hook only a weak one (weak.Pointer[signalHolder]) — see §9 "cyclic hook references". When
// the publisher task returns, it drops its strong reference; once the runtime reclaims the
// holder, the hook's weak pointer resolves to nil and becomes a no-op.
type signalHolder struct {
	ch chan struct{}
}

// DatabaseHandle owns one tenant database's broadcast fan-out and the cancel func of its
// publisher task; the update-hook signal is held by the publisher task itself. is_orphan()
// holds exactly when no subscriber remains.
type DatabaseHandle struct {
	dbName string
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	cancel context.CancelFunc
}

func newDatabaseHandle(dbName string, cancel context.CancelFunc) *DatabaseHandle {
	return &DatabaseHandle{dbName: dbName, subs: map[*subscriber]struct{}{}, cancel: cancel}
}

// IsOrphan reports whether the broadcast receiver count is zero.
func (h *DatabaseHandle) IsOrphan() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) == 0
}

// ConnectionCount reports the number of open subscriptions, for diagnostics (kill_connection
// logs this before removing a handle, mirroring the original).
func (h *DatabaseHandle) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe registers a fresh subscriber and returns its Subscription.
func (h *DatabaseHandle) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &subscriber{ch: make(chan Message, subscriberBufferSize)}
	h.subs[s] = struct{}{}
	return &Subscription{handle: h, sub: s}
}

func (h *DatabaseHandle) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// broadcast fans msg out to every subscriber with a non-blocking send. A subscriber whose
// channel is full (lagging behind) is dropped and its channel closed — the stream endpoint
// observes this as a closed channel and treats it as fatal, exactly as a tokio broadcast
// "Lagged" error would be treated. Returns false when there are no subscribers at all, the
// signal the publisher task uses to exit.
func (h *DatabaseHandle) broadcast(msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return false
	}
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			delete(h.subs, s)
			close(s.ch)
		}
	}
	return true
}

// closeAll closes every subscriber channel, used by kill_connection to force every open
// reader's recv() to observe end-of-stream.
func (h *DatabaseHandle) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}

// stopPublisher cancels the publisher task. Idempotent.
func (h *DatabaseHandle) stopPublisher() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Subscription is one receiver on a DatabaseHandle's broadcast fan-out.
type Subscription struct {
	handle *DatabaseHandle
	sub    *subscriber
}

// Messages returns the channel to receive from. A closed channel (zero value, ok == false
// on receive) means the subscription lagged or the database connection was killed.
func (s *Subscription) Messages() <-chan Message { return s.sub.ch }

// Close unregisters the subscription from its handle.
func (s *Subscription) Close() { s.handle.unsubscribe(s.sub) }

// addHandle implements §4.D's add_handle: opens a trusted read-only publisher connection,
// installs the update hook with a weak reference to the signal, and spawns the publisher
// task.
func addHandle(ctx context.Context, dataDir, dbName string, logger *slog.Logger) (*DatabaseHandle, *Subscription, error) {
	pub, err := database.OpenReadOnlyLatest(ctx, dataDir, dbName, permission.Full())
	if err != nil {
		return nil, nil, err
	}

	signal := make(chan struct{}, 1)
	holder := &signalHolder{ch: signal}
	weakHolder := weak.Make(holder)

	pub.UpdateHook(func(_ int, _, _ string, _ int64) {
		if h := weakHolder.Value(); h != nil {
			select {
			case h.ch <- struct{}{}:
			default:
			}
		}
	})

	publisherCtx, cancel := context.WithCancel(context.Background())
	handle := newDatabaseHandle(dbName, cancel)
	sub := handle.Subscribe()

	go runPublisher(publisherCtx, pub, handle, holder, logger)

	return handle, sub, nil
}

// runPublisher is the publisher task: an initial full drain, then a loop re-draining on
// every signal, exiting when the broadcast has no subscribers left (§4.D step 4) or the
// context is cancelled (registry shutdown / kill_connection).
func runPublisher(ctx context.Context, db *database.Database, handle *DatabaseHandle, holder *signalHolder, logger *slog.Logger) {
	defer db.Close(context.Background())
	// holder's strong reference must outlive the update hook's need for it, i.e. this whole
	// goroutine; KeepAlive pins it against a premature collection race with the final use
	// inside the hook closure above.
	defer runtime.KeepAlive(holder)

	drain := func() bool {
		it, err := db.AllChanges()
		if err != nil {
			handle.broadcast(errorMessage(err))
			return false
		}
		for it.HasNext() {
			page, _, err := it.Next(ctx)
			if err != nil {
				handle.broadcast(errorMessage(apperror.DatabaseError(err)))
				return false
			}
			for _, cs := range page {
				if !handle.broadcast(changeMessage(cs)) {
					return false
				}
			}
		}
		return true
	}

	if logger != nil {
		logger.Info("starting database watcher task", slog.String("database", handle.dbName))
	}

	if !drain() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-holder.ch:
			if !drain() {
				return
			}
		}
	}
}
