package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"corkboard/api/internal/board"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Boards store the whole document as JSONB, so card rows are expanded
// inline with jsonb_array_elements.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always reports true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across board names and card contents
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBoard {
		boardWhere := "to_tsvector('english', coalesce(b.doc->>'name', '')) @@ " + tsQuery
		if q.FilterBoardID != "" {
			boardWhere += fmt.Sprintf(" AND b.id = $%d", argN)
			args = append(args, q.FilterBoardID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, coalesce(b.doc->>'name', '') AS title,
				ts_headline('english', coalesce(b.doc->>'name', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, ''::text AS column_title,
				ts_rank(to_tsvector('english', coalesce(b.doc->>'name', '')), %s) AS rank
			FROM boards b
			WHERE %s`, tsQuery, tsQuery, boardWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultCard {
		cardText := "coalesce(card->>'title', '') || ' ' || coalesce(card->>'description', '')"
		cardWhere := fmt.Sprintf("to_tsvector('english', %s) @@ %s", cardText, tsQuery)
		if q.FilterBoardID != "" {
			cardWhere += fmt.Sprintf(" AND b.id = $%d", argN)
			args = append(args, q.FilterBoardID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'card'::text AS type, coalesce(card->>'id', '') AS id, coalesce(card->>'title', '') AS title,
				ts_headline('english', coalesce(card->>'description', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, coalesce(col->>'title', '') AS column_title,
				ts_rank(to_tsvector('english', %s), %s) AS rank
			FROM boards b,
				LATERAL jsonb_array_elements(coalesce(b.doc->'columns', '[]'::jsonb)) AS col,
				LATERAL jsonb_array_elements(coalesce(col->'cards', '[]'::jsonb)) AS card
			WHERE %s`, tsQuery, cardText, tsQuery, cardWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, board_id, column_title
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.ColumnTitle); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BoardDoc, []CardDoc, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, doc FROM boards`)
	if err != nil {
		return nil, nil, fmt.Errorf("load boards: %w", err)
	}
	defer rows.Close()

	boards := make([]BoardDoc, 0)
	cards := make([]CardDoc, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, nil, fmt.Errorf("scan board: %w", err)
		}
		var doc board.Board
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, nil, fmt.Errorf("decode board %s: %w", id, err)
		}
		boards = append(boards, BoardDoc{ID: id, Name: doc.Name})
		cards = append(cards, CardDocsFrom(id, &doc)...)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate boards: %w", err)
	}

	return boards, cards, nil
}

// CardDocsFrom flattens a board document into indexable card records.
func CardDocsFrom(boardID string, doc *board.Board) []CardDoc {
	cards := make([]CardDoc, 0)
	for _, col := range doc.Columns {
		for _, card := range col.Cards {
			cards = append(cards, CardDoc{
				ID:          card.ID,
				Title:       card.Title,
				Description: card.Description,
				BoardID:     boardID,
				ColumnTitle: col.Title,
			})
		}
	}
	return cards
}
