package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"testing"
	"time"

	"corkboard/api/internal/board"
)

type fakeAdapter struct {
	mu       stdsync.Mutex
	pushes   [][]board.Operation
	pushErr  error
	pullOps  []board.Operation
	pullRev  int64
	pullErr  error
	snapshot *Snapshot
	revision int64
}

func (f *fakeAdapter) PushOps(_ context.Context, _ string, ops []board.Operation, _ int64) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return PushResult{}, f.pushErr
	}
	f.pushes = append(f.pushes, ops)
	f.revision++
	return PushResult{ServerRevision: f.revision}, nil
}

func (f *fakeAdapter) PullOps(_ context.Context, _ string, since int64) (PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return PullResult{}, f.pullErr
	}
	if f.pullRev > since {
		return PullResult{Ops: f.pullOps, ServerRevision: f.pullRev}, nil
	}
	return PullResult{ServerRevision: since}, nil
}

func (f *fakeAdapter) FetchSnapshot(context.Context, string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

func (f *fakeAdapter) PushSnapshot(_ context.Context, _ string, _ *board.Board) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revision++
	return PushResult{ServerRevision: f.revision}, nil
}

func (f *fakeAdapter) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func rawString(t *testing.T, s string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestRecordAppliesLocallyAndQueues(t *testing.T) {
	adapter := &fakeAdapter{}
	e := NewEngine("brd_1", &board.Board{Name: "Sprint"}, adapter, nil)
	defer e.Close()

	op := board.Operation{
		Type:   board.OpColumnAdd,
		Index:  0,
		Column: &board.Column{ID: "c1", Title: "Todo", Cards: []board.Card{}},
	}
	if err := e.Record(op); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	doc := e.Document()
	if len(doc.Columns) != 1 || doc.Columns[0].ID != "c1" {
		t.Fatalf("local document not mutated: %+v", doc)
	}

	e.SyncNow()
	if got := adapter.pushCount(); got != 1 {
		t.Fatalf("push count = %d, want 1", got)
	}
	if got := e.PendingOps(); got != 0 {
		t.Fatalf("pending after push = %d, want 0", got)
	}
	if got := e.Revision(); got != 1 {
		t.Fatalf("revision after push = %d, want 1", got)
	}
}

func TestRecordRejectsInvalidOperation(t *testing.T) {
	e := NewEngine("brd_1", &board.Board{}, &fakeAdapter{}, nil)
	defer e.Close()

	err := e.Record(board.Operation{Type: board.OpColumnReorder, ColumnIDs: []string{"ghost"}})
	if err == nil {
		t.Fatal("expected reorder against unknown column to fail")
	}
	if got := e.PendingOps(); got != 0 {
		t.Fatalf("invalid op was queued, pending = %d", got)
	}
}

func TestPushFailureKeepsOpsQueued(t *testing.T) {
	adapter := &fakeAdapter{pushErr: context.DeadlineExceeded}
	e := NewEngine("brd_1", &board.Board{}, adapter, nil)
	defer e.Close()

	if err := e.Record(board.Operation{Type: board.OpBoardName, Value: rawString(t, "Renamed")}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e.SyncNow()
	if got := e.PendingOps(); got != 1 {
		t.Fatalf("pending after failed push = %d, want 1", got)
	}

	// backend recovers, the next cycle drains the queue
	adapter.mu.Lock()
	adapter.pushErr = nil
	adapter.mu.Unlock()
	e.SyncNow()
	if got := e.PendingOps(); got != 0 {
		t.Fatalf("pending after retry = %d, want 0", got)
	}
}

func TestPullFoldsRemoteOpsAndNotifies(t *testing.T) {
	adapter := &fakeAdapter{
		pullRev: 3,
		pullOps: []board.Operation{
			{Type: board.OpColumnAdd, Index: 0, Column: &board.Column{ID: "c1", Title: "Todo"}},
			{Type: board.OpColumnTitle, ColumnID: "c1", Value: json.RawMessage(`"In Progress"`)},
		},
	}

	var mu stdsync.Mutex
	var notified *board.Board
	e := NewEngine("brd_1", &board.Board{}, adapter, func(doc *board.Board) {
		mu.Lock()
		notified = doc
		mu.Unlock()
	})
	defer e.Close()

	e.SyncNow()

	doc := e.Document()
	if len(doc.Columns) != 1 || doc.Columns[0].Title != "In Progress" {
		t.Fatalf("remote ops not folded: %+v", doc)
	}
	if got := e.Revision(); got != 3 {
		t.Fatalf("revision = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if notified == nil || len(notified.Columns) != 1 {
		t.Fatal("onChange not fired with updated document")
	}
}

func TestNoopAdapterLeavesDocumentAlone(t *testing.T) {
	e := NewEngine("brd_1", &board.Board{Name: "Local Only"}, nil, func(*board.Board) {
		t.Error("onChange fired without a backend")
	})
	defer e.Close()

	if err := e.Record(board.Operation{Type: board.OpBoardName, Value: json.RawMessage(`"Still Local"`)}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e.SyncNow()

	doc := e.Document()
	if doc.Name != "Still Local" {
		t.Fatalf("name = %q, want %q", doc.Name, "Still Local")
	}
	if got := e.Revision(); got != 0 {
		t.Fatalf("revision moved without a backend: %d", got)
	}
}

func TestSetAdapterSwitchesTransport(t *testing.T) {
	e := NewEngine("brd_1", &board.Board{}, nil, nil)
	defer e.Close()

	if err := e.Record(board.Operation{Type: board.OpBoardName, Value: json.RawMessage(`"Shared"`)}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e.SyncNow()

	// the no-op adapter discarded nothing locally but acked the push, so the
	// queue drained; new edits after the swap go to the real transport
	adapter := &fakeAdapter{}
	e.SetAdapter(adapter)
	if err := e.Record(board.Operation{Type: board.OpBoardName, Value: json.RawMessage(`"Networked"`)}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e.SyncNow()

	if got := adapter.pushCount(); got != 1 {
		t.Fatalf("push count on new adapter = %d, want 1", got)
	}
}

func TestBootstrapPrefersRemoteSnapshot(t *testing.T) {
	adapter := &fakeAdapter{snapshot: &Snapshot{
		Board:          &board.Board{Name: "Remote", Columns: []board.Column{{ID: "c1", Title: "Todo"}}},
		ServerRevision: 9,
	}}
	e := NewEngine("brd_1", &board.Board{Name: "Local"}, adapter, nil)
	defer e.Close()

	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	doc := e.Document()
	if doc.Name != "Remote" || len(doc.Columns) != 1 {
		t.Fatalf("remote snapshot not adopted: %+v", doc)
	}
	if got := e.Revision(); got != 9 {
		t.Fatalf("revision = %d, want 9", got)
	}
}

func TestBootstrapSeedsBackendWhenBoardMissing(t *testing.T) {
	adapter := &fakeAdapter{}
	e := NewEngine("brd_1", &board.Board{Name: "Local"}, adapter, nil)
	defer e.Close()

	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if got := e.Revision(); got != 1 {
		t.Fatalf("revision after seeding = %d, want 1", got)
	}
	if doc := e.Document(); doc.Name != "Local" {
		t.Fatalf("local document changed during seed: %+v", doc)
	}
}

func TestPeriodicPullRunsWithoutManualTrigger(t *testing.T) {
	adapter := &fakeAdapter{
		pullRev: 1,
		pullOps: []board.Operation{{Type: board.OpBoardName, Value: json.RawMessage(`"Ticked"`)}},
	}
	e := NewEngine("brd_1", &board.Board{}, adapter, nil)
	defer e.Close()

	e.SetPullInterval(10 * time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		if e.Document().Name == "Ticked" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("periodic pull never applied remote ops")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
