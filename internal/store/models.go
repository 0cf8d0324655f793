package store

import (
	"time"

	"corkboard/api/internal/board"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsExternal            bool
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BoardRecord is the materialized board row: the authoritative document plus
// the per-board revision counter the sync protocol hangs off.
type BoardRecord struct {
	ID             string
	OwnerID        string
	ServerRevision int64
	Doc            board.Board
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OpsLogEntry is one committed push batch. Entries are append-only and
// ordered by Revision; a batch of N operations occupies a single entry and a
// single revision increment.
type OpsLogEntry struct {
	BoardID        string
	Revision       int64
	Ops            []board.Operation
	UserID         string
	ClientRevision int64
	CreatedAt      time.Time
}

// CommitInfo describes one snapshot-archive commit.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
