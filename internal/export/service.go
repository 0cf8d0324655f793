package export

import (
	"context"
	"fmt"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetBoard(ctx context.Context, id string) (BoardInfo, error)
}

// Service provides board export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetBoard(ctx, req.BoardID)
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}

	data := TemplateData{
		Name:      info.Name,
		Revision:  info.Revision,
		UpdatedAt: info.UpdatedAt,
	}
	for _, col := range info.Columns {
		tc := TemplateColumn{Title: col.Title}
		for _, card := range col.Cards {
			tc.Cards = append(tc.Cards, TemplateCard{
				Title:       card.Title,
				Description: card.Description,
			})
		}
		data.Columns = append(data.Columns, tc)
	}

	html, err := RenderBoardHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, info.Name)
	case FormatDOCX:
		return exportDOCX(html, info.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
