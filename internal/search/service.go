package search

import (
	"context"
	"log"

	"corkboard/api/internal/board"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBoard reindexes a board document and its cards (fire-and-forget
// to Meilisearch). Stale cards from earlier revisions are dropped first.
func (s *Service) IndexBoard(boardID string, doc *board.Board) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := BoardDoc{ID: boardID, Name: doc.Name}
	cards := CardDocsFrom(boardID, doc)
	go func() {
		if err := s.meili.IndexBoard(record); err != nil {
			log.Printf("search: index board %s: %v", boardID, err)
		}
		if err := s.meili.DeleteBoardCards(boardID); err != nil {
			log.Printf("search: clear cards for board %s: %v", boardID, err)
		}
		if err := s.meili.IndexCards(cards); err != nil {
			log.Printf("search: index cards for board %s: %v", boardID, err)
		}
	}()
}

// DeleteBoard removes a board and its cards from the search index
// (fire-and-forget).
func (s *Service) DeleteBoard(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBoard(id); err != nil {
			log.Printf("search: delete board %s: %v", id, err)
		}
		if err := s.meili.DeleteBoardCards(id); err != nil {
			log.Printf("search: delete cards for board %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes preloaded records to Meilisearch.
func (s *Service) ReindexAll(boards []BoardDoc, cards []CardDoc) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(boards) > 0 {
		if err := s.meili.IndexBoards(boards); err != nil {
			log.Printf("search: reindex boards: %v", err)
		}
	}
	if len(cards) > 0 {
		if err := s.meili.IndexCards(cards); err != nil {
			log.Printf("search: reindex cards: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes every board from PostgreSQL into
// Meilisearch, so the index catches up after downtime.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	boards, cards, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(boards, cards)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
