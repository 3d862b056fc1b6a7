package selection

import (
	"context"
	"sync"
	"time"
)

// saveTimeout bounds one background save.
const saveTimeout = 10 * time.Second

// Writer saves a Store's selection in the background.
//
// Schedule never blocks on storage. When several saves are scheduled while
// one is in flight, only the latest is written. Save errors are logged and
// otherwise dropped.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Writer struct {
	store  *Store
	logger Logger

	mu      sync.Mutex
	pending []string
	dirty   bool
	closed  bool

	wake    chan struct{}
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}

	// onSaved is called after each save attempt. Used by tests.
	onSaved func(entities []string, err error)
}

// NewWriter starts a background writer for store.
func NewWriter(store *Store) *Writer {
	w := &Writer{
		store:   store,
		logger:  store.logger,
		wake:    make(chan struct{}, 1),
		flushCh: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// Schedule queues entities for saving and returns immediately.
func (w *Writer) Schedule(entities []string) {
	snapshot := make([]string, len(entities))
	copy(snapshot, entities)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("selection save dropped", "key", w.store.Key(), "error", ErrWriterClosed)
		return
	}
	w.pending = snapshot
	w.dirty = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every save scheduled before the call is written, or
// ctx is done. It returns ErrWriterClosed when Close was called first.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWriterClosed
	}

	ack := make(chan struct{})
	select {
	case w.flushCh <- ack:
	case <-w.done:
		// Close raced this call and wrote everything pending.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending save and stops the writer. It is idempotent.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.stop)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.writePending()
		case ack := <-w.flushCh:
			w.writePending()
			close(ack)
		case <-w.stop:
			w.writePending()
			return
		}
	}
}

func (w *Writer) writePending() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	entities := w.pending
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := w.store.Save(ctx, entities)
	if err != nil {
		w.logger.Error("saving selection failed", "key", w.store.Key(), "error", err)
	} else {
		w.logger.Debug("selection saved", "key", w.store.Key(), "count", len(entities))
	}
	if w.onSaved != nil {
		w.onSaved(entities, err)
	}
}
