package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"corkboard/api/internal/board"
)

// ErrBoardNotFound is returned when a board id does not exist.
var ErrBoardNotFound = errors.New("board not found")

func (s *PostgresStore) CreateBoard(ctx context.Context, record BoardRecord) error {
	docRaw, err := json.Marshal(record.Doc)
	if err != nil {
		return fmt.Errorf("marshal board doc: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO boards (id, owner_id, server_revision, doc)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.OwnerID, record.ServerRevision, docRaw)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (BoardRecord, error) {
	const query = `
		SELECT id, owner_id, server_revision, doc, created_at, updated_at
		FROM boards WHERE id = $1
	`
	var record BoardRecord
	var docRaw []byte
	err := s.db.QueryRowContext(ctx, query, boardID).Scan(
		&record.ID, &record.OwnerID, &record.ServerRevision, &docRaw, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BoardRecord{}, ErrBoardNotFound
	}
	if err != nil {
		return BoardRecord{}, fmt.Errorf("read board: %w", err)
	}
	if err := json.Unmarshal(docRaw, &record.Doc); err != nil {
		return BoardRecord{}, fmt.Errorf("decode board doc: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListBoards(ctx context.Context, ownerID string) ([]BoardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, server_revision, doc, created_at, updated_at
		FROM boards WHERE owner_id = $1 ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var records []BoardRecord
	for rows.Next() {
		var record BoardRecord
		var docRaw []byte
		if err := rows.Scan(&record.ID, &record.OwnerID, &record.ServerRevision, &docRaw, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		if err := json.Unmarshal(docRaw, &record.Doc); err != nil {
			return nil, fmt.Errorf("decode board doc: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrBoardNotFound
	}
	return nil
}

// AppendOps commits one push batch: the board row is locked, the revision
// advances by exactly one, a single log entry is written, and every operation
// is folded into the materialized document in array order. All of it commits
// or none of it does; an invalid operation rolls the whole batch back.
func (s *PostgresStore) AppendOps(ctx context.Context, boardID string, ops []board.Operation, userID string, clientRevision int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin push tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var revision int64
	var docRaw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT server_revision, doc FROM boards WHERE id = $1 FOR UPDATE
	`, boardID).Scan(&revision, &docRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBoardNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock board: %w", err)
	}

	var doc board.Board
	if err := json.Unmarshal(docRaw, &doc); err != nil {
		return 0, fmt.Errorf("decode board doc: %w", err)
	}

	revision++
	opsRaw, err := json.Marshal(ops)
	if err != nil {
		return 0, fmt.Errorf("marshal ops: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_ops (board_id, revision, ops, user_id, client_revision)
		VALUES ($1, $2, $3, $4, $5)
	`, boardID, revision, opsRaw, userID, clientRevision); err != nil {
		return 0, fmt.Errorf("append ops log entry: %w", err)
	}

	if err := board.ApplyAll(&doc, ops); err != nil {
		return 0, err
	}

	newDoc, err := json.Marshal(&doc)
	if err != nil {
		return 0, fmt.Errorf("marshal board doc: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE boards SET doc = $1, server_revision = $2, updated_at = NOW() WHERE id = $3
	`, newDoc, revision, boardID); err != nil {
		return 0, fmt.Errorf("update board doc: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit push tx: %w", err)
	}
	return revision, nil
}

// OpsSince returns every log entry with revision > since in ascending order,
// plus the board's current revision. Entries are capped at the revision read
// from the board row so a pull observes a consistent prefix of the log.
func (s *PostgresStore) OpsSince(ctx context.Context, boardID string, since int64) ([]OpsLogEntry, int64, error) {
	var serverRevision int64
	err := s.db.QueryRowContext(ctx, `SELECT server_revision FROM boards WHERE id = $1`, boardID).Scan(&serverRevision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrBoardNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read board revision: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, ops, user_id, client_revision, created_at
		FROM board_ops
		WHERE board_id = $1 AND revision > $2 AND revision <= $3
		ORDER BY revision ASC
	`, boardID, since, serverRevision)
	if err != nil {
		return nil, 0, fmt.Errorf("read ops log: %w", err)
	}
	defer rows.Close()

	var entries []OpsLogEntry
	for rows.Next() {
		entry := OpsLogEntry{BoardID: boardID}
		var opsRaw []byte
		if err := rows.Scan(&entry.Revision, &opsRaw, &entry.UserID, &entry.ClientRevision, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan ops log entry: %w", err)
		}
		if err := json.Unmarshal(opsRaw, &entry.Ops); err != nil {
			return nil, 0, fmt.Errorf("decode ops log entry %d: %w", entry.Revision, err)
		}
		entries = append(entries, entry)
	}
	return entries, serverRevision, rows.Err()
}

// ReplaceBoardDoc swaps in a whole snapshot, bypassing the ops log. The
// revision still advances so pullers learn that their baseline is stale; the
// skipped revision simply has no log entry.
func (s *PostgresStore) ReplaceBoardDoc(ctx context.Context, boardID string, doc *board.Board) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var revision int64
	err = tx.QueryRowContext(ctx, `SELECT server_revision FROM boards WHERE id = $1 FOR UPDATE`, boardID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBoardNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock board: %w", err)
	}

	revision++
	docRaw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal board doc: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE boards SET doc = $1, server_revision = $2, updated_at = NOW() WHERE id = $3
	`, docRaw, revision, boardID); err != nil {
		return 0, fmt.Errorf("replace board doc: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace tx: %w", err)
	}
	return revision, nil
}
