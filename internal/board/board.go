// Package board holds the board document model and the operation fold that
// both the server and the client sync engine use to mutate it.
package board

import "encoding/json"

// Board is the denormalized board document. The server keeps the
// authoritative copy; the sync engine owns the in-memory client copy.
type Board struct {
	Name            string                     `json:"name"`
	BackgroundImage string                     `json:"backgroundImage,omitempty"`
	PluginData      map[string]json.RawMessage `json:"pluginData,omitempty"`
	Columns         []Column                   `json:"columns"`
}

type Column struct {
	ID         string                     `json:"id"`
	Title      string                     `json:"title"`
	PluginData map[string]json.RawMessage `json:"pluginData,omitempty"`
	Cards      []Card                     `json:"cards"`
}

type Card struct {
	ID          string                     `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description,omitempty"`
	PluginData  map[string]json.RawMessage `json:"pluginData,omitempty"`
}

// Clone returns a deep copy of the document. Pulled remote operations are
// applied to a copy first so a failed fold never leaves the local document
// half-mutated.
func (b *Board) Clone() *Board {
	out := &Board{
		Name:            b.Name,
		BackgroundImage: b.BackgroundImage,
		PluginData:      cloneRaw(b.PluginData),
	}
	if b.Columns != nil {
		out.Columns = make([]Column, len(b.Columns))
		for i, col := range b.Columns {
			out.Columns[i] = col.clone()
		}
	}
	return out
}

func (c Column) clone() Column {
	out := Column{
		ID:         c.ID,
		Title:      c.Title,
		PluginData: cloneRaw(c.PluginData),
	}
	if c.Cards != nil {
		out.Cards = make([]Card, len(c.Cards))
		for i, card := range c.Cards {
			out.Cards[i] = Card{
				ID:          card.ID,
				Title:       card.Title,
				Description: card.Description,
				PluginData:  cloneRaw(card.PluginData),
			}
		}
	}
	return out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
