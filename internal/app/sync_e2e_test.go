package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"corkboard/api/internal/board"
	boardsync "corkboard/api/internal/sync"
)

// Two engines against one server: edits recorded on the first must reach the
// second through push, pull and the materialized snapshot.
func TestSyncEngineRoundTripAgainstServer(t *testing.T) {
	ms := newMemStore()
	seedUser(ms, "editor")
	svc := newProtocolService(ms)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer server.Close()

	token := issueTestToken(t, "editor", "jti-e2e-1")
	headers := func() map[string]string {
		return map[string]string{"Authorization": "Bearer " + token}
	}

	session, err := svc.SessionFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	record, err := svc.CreateBoard(context.Background(), session, "Shared Board")
	if err != nil {
		t.Fatalf("create board: %v", err)
	}

	writer := boardsync.NewEngine(record.ID, &board.Board{}, boardsync.NewRESTAdapter(server.URL, headers), nil)
	defer writer.Close()
	if err := writer.Bootstrap(context.Background()); err != nil {
		t.Fatalf("writer bootstrap: %v", err)
	}

	if err := writer.Record(board.Operation{
		Type:   board.OpColumnAdd,
		Index:  0,
		Column: &board.Column{ID: "c1", Title: "Todo", Cards: []board.Card{}},
	}); err != nil {
		t.Fatalf("record add: %v", err)
	}
	if err := writer.Record(board.Operation{
		Type:     board.OpColumnTitle,
		ColumnID: "c1",
		Value:    json.RawMessage(`"In Progress"`),
	}); err != nil {
		t.Fatalf("record title: %v", err)
	}
	writer.SyncNow()

	if got := writer.Revision(); got != 1 {
		t.Fatalf("writer revision = %d, want 1 (one batch, one increment)", got)
	}

	reader := boardsync.NewEngine(record.ID, &board.Board{}, boardsync.NewRESTAdapter(server.URL, headers), nil)
	defer reader.Close()
	if err := reader.Bootstrap(context.Background()); err != nil {
		t.Fatalf("reader bootstrap: %v", err)
	}

	doc := reader.Document()
	if len(doc.Columns) != 1 || doc.Columns[0].Title != "In Progress" {
		t.Fatalf("reader document = %+v", doc)
	}
	if got := reader.Revision(); got != 1 {
		t.Fatalf("reader revision = %d, want 1", got)
	}

	// a second batch from the writer reaches the reader via pull
	if err := writer.Record(board.Operation{
		Type:  board.OpBoardName,
		Value: json.RawMessage(`"Renamed Board"`),
	}); err != nil {
		t.Fatalf("record rename: %v", err)
	}
	writer.SyncNow()
	reader.SyncNow()

	if got := reader.Document().Name; got != "Renamed Board" {
		t.Fatalf("reader board name = %q, want Renamed Board", got)
	}
	if got := reader.Revision(); got != 2 {
		t.Fatalf("reader revision = %d, want 2", got)
	}
}
