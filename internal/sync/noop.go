package sync

import (
	"context"

	"corkboard/api/internal/board"
)

// NoopAdapter is the default transport when no backend is configured. Pushes
// are accepted and discarded, pulls are always empty, and the revision handed
// back is whatever the caller already had, so the engine never moves the local
// document in response to remote data.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (*NoopAdapter) PushOps(_ context.Context, _ string, _ []board.Operation, clientRevision int64) (PushResult, error) {
	return PushResult{ServerRevision: clientRevision}, nil
}

func (*NoopAdapter) PullOps(_ context.Context, _ string, since int64) (PullResult, error) {
	return PullResult{ServerRevision: since}, nil
}

func (*NoopAdapter) FetchSnapshot(context.Context, string) (*Snapshot, error) {
	return nil, nil
}

func (*NoopAdapter) PushSnapshot(_ context.Context, _ string, _ *board.Board) (PushResult, error) {
	return PushResult{}, nil
}
