// Package sync implements the client side of the board synchronization
// protocol: a transport adapter contract, a REST transport, a no-op transport
// for purely local use, and the engine that batches local operations for push
// and folds pulled remote operations into the local document.
package sync

import (
	"context"

	"corkboard/api/internal/board"
)

// PushResult is the server's answer to a push: the revision assigned to the
// committed batch.
type PushResult struct {
	ServerRevision int64 `json:"serverRevision"`
}

// PullResult carries every operation committed after the requested revision,
// flattened in ascending revision order.
type PullResult struct {
	Ops            []board.Operation `json:"ops"`
	ServerRevision int64             `json:"serverRevision"`
}

// Snapshot is a full board document plus the revision it was read at.
type Snapshot struct {
	Board          *board.Board `json:"board"`
	ServerRevision int64        `json:"serverRevision"`
}

// Adapter is the capability contract any transport must satisfy. The engine
// treats every returned error as transient and retries on its next cycle.
type Adapter interface {
	PushOps(ctx context.Context, boardID string, ops []board.Operation, clientRevision int64) (PushResult, error)
	PullOps(ctx context.Context, boardID string, since int64) (PullResult, error)
	// FetchSnapshot returns (nil, nil) when the board does not exist remotely.
	FetchSnapshot(ctx context.Context, boardID string) (*Snapshot, error)
	PushSnapshot(ctx context.Context, boardID string, doc *board.Board) (PushResult, error)
}
