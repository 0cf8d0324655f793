package sync

import (
	"context"
	"errors"
	"log"
	stdsync "sync"
	"time"

	"corkboard/api/internal/board"
)

const defaultPullInterval = 30 * time.Second

// Engine keeps one board document in step with a backend. Local edits go
// through Record, which folds them into the document immediately and queues
// them for the next push. A background loop pushes the queue and pulls remote
// operations on a fixed cadence.
//
// At most one push and one pull are in flight at any time. A cycle landing
// while the previous one is still running is skipped, not queued, and a
// failed push keeps its operations queued for the next cycle.
type Engine struct {
	boardID  string
	onChange func(*board.Board)

	mu         stdsync.Mutex
	adapter    Adapter
	adapterCtx context.Context
	cancel     context.CancelFunc
	doc        *board.Board
	pending    []board.Operation
	revision   int64
	interval   time.Duration
	syncing    bool
	closed     bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewEngine starts the sync loop for one board. A nil adapter selects the
// no-op transport; onChange, if set, fires after remote operations land.
func NewEngine(boardID string, doc *board.Board, adapter Adapter, onChange func(*board.Board)) *Engine {
	if adapter == nil {
		adapter = NewNoopAdapter()
	}
	if doc == nil {
		doc = &board.Board{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		boardID:    boardID,
		onChange:   onChange,
		adapter:    adapter,
		adapterCtx: ctx,
		cancel:     cancel,
		doc:        doc,
		interval:   defaultPullInterval,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go e.loop()
	return e
}

// Document returns a copy of the current local document.
func (e *Engine) Document() *board.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// Revision returns the last server revision the engine has seen.
func (e *Engine) Revision() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// PendingOps reports how many local operations await push.
func (e *Engine) PendingOps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Record folds a local operation into the document and queues it for the
// next push cycle. The fold error is returned so the caller can reject
// invalid local edits before they ever reach the wire.
func (e *Engine) Record(op board.Operation) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("sync engine closed")
	}
	if err := board.Apply(e.doc, op); err != nil {
		e.mu.Unlock()
		return err
	}
	e.pending = append(e.pending, op)
	e.mu.Unlock()
	return nil
}

// SetAdapter swaps the transport at runtime. In-flight requests against the
// old adapter are cancelled; pending local operations stay queued and go out
// over the new transport on the next cycle.
func (e *Engine) SetAdapter(adapter Adapter) {
	if adapter == nil {
		adapter = NewNoopAdapter()
	}
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	oldCancel := e.cancel
	e.adapter = adapter
	e.adapterCtx = ctx
	e.cancel = cancel
	e.mu.Unlock()

	oldCancel()
}

// SetPullInterval reconfigures the polling cadence without restarting the
// engine. Non-positive values restore the default.
func (e *Engine) SetPullInterval(d time.Duration) {
	if d <= 0 {
		d = defaultPullInterval
	}
	e.mu.Lock()
	e.interval = d
	e.mu.Unlock()

	e.requestSync()
}

// Bootstrap loads the remote snapshot into the engine, or seeds the backend
// with the local document when the board does not exist remotely yet.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	adapter := e.adapter
	local := e.doc.Clone()
	e.mu.Unlock()

	snap, err := adapter.FetchSnapshot(ctx, e.boardID)
	if err != nil {
		return err
	}
	if snap == nil || snap.Board == nil {
		res, err := adapter.PushSnapshot(ctx, e.boardID, local)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.revision = res.ServerRevision
		e.mu.Unlock()
		return nil
	}

	e.mu.Lock()
	e.doc = snap.Board.Clone()
	e.revision = snap.ServerRevision
	doc := e.doc.Clone()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(doc)
	}
	return nil
}

// SyncNow runs one push-then-pull cycle immediately instead of waiting for
// the next scheduled tick.
func (e *Engine) SyncNow() { e.syncOnce() }

// Close stops the loop and cancels any in-flight requests. Pending
// unpushed operations are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	close(e.quit)
	<-e.done
}

func (e *Engine) requestSync() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		interval := e.interval
		e.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-e.quit:
			timer.Stop()
			return
		case <-timer.C:
		case <-e.wake:
			timer.Stop()
		}
		e.syncOnce()
	}
}

// syncOnce pushes the pending queue, then pulls. The syncing flag coalesces
// overlapping cycles into one.
func (e *Engine) syncOnce() {
	e.mu.Lock()
	if e.syncing || e.closed {
		e.mu.Unlock()
		return
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	e.push()
	e.pull()
}

func (e *Engine) push() {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return
	}
	adapter := e.adapter
	ctx := e.adapterCtx
	ops := append([]board.Operation(nil), e.pending...)
	revision := e.revision
	e.mu.Unlock()

	res, err := adapter.PushOps(ctx, e.boardID, ops, revision)
	if err != nil {
		log.Printf("sync %s: push deferred: %v", e.boardID, err)
		return
	}

	e.mu.Lock()
	// edits may have queued while the request was in flight; drop only the
	// prefix that actually went out
	e.pending = append([]board.Operation(nil), e.pending[len(ops):]...)
	if res.ServerRevision > e.revision {
		e.revision = res.ServerRevision
	}
	e.mu.Unlock()
}

func (e *Engine) pull() {
	e.mu.Lock()
	adapter := e.adapter
	ctx := e.adapterCtx
	since := e.revision
	e.mu.Unlock()

	res, err := adapter.PullOps(ctx, e.boardID, since)
	if err != nil {
		log.Printf("sync %s: pull deferred: %v", e.boardID, err)
		return
	}

	e.mu.Lock()
	if len(res.Ops) == 0 {
		if res.ServerRevision > e.revision {
			e.revision = res.ServerRevision
		}
		e.mu.Unlock()
		return
	}

	// fold into a copy so a bad remote op cannot leave the live document
	// half-mutated
	next := e.doc.Clone()
	for _, op := range res.Ops {
		if err := board.Apply(next, op); err != nil {
			log.Printf("sync %s: skipping remote op %s: %v", e.boardID, op.Type, err)
		}
	}
	e.doc = next
	if res.ServerRevision > e.revision {
		e.revision = res.ServerRevision
	}
	doc := e.doc.Clone()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(doc)
	}
}
