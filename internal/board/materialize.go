package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ErrInvalidOperation marks an operation that cannot be folded into the
// document at all, as opposed to one that merely targets a column which no
// longer exists. The server rolls back the whole batch when it sees this.
var ErrInvalidOperation = errors.New("invalid operation")

// Apply folds a single operation into the document in place.
//
// Operations targeting a column that is gone (column:title, column:pluginData,
// column:cards) are silent no-ops: an edit racing a concurrent column delete
// is an expected situation and must not fail the batch. column:reorder is the
// deliberate exception and fails hard on an unknown id. Unknown operation
// kinds are logged and skipped so older servers survive newer clients.
func Apply(doc *Board, op Operation) error {
	switch op.Type {
	case OpBoardName:
		return decodeString(op, &doc.Name)

	case OpBoardBackgroundImage:
		return decodeString(op, &doc.BackgroundImage)

	case OpBoardPluginData:
		doc.PluginData = upsertPluginData(doc.PluginData, op)
		return nil

	case OpColumnAdd:
		if op.Column == nil {
			return fmt.Errorf("%w: %s without column payload", ErrInvalidOperation, op.Type)
		}
		idx := op.Index
		if idx < 0 {
			idx = 0
		}
		if idx > len(doc.Columns) {
			idx = len(doc.Columns)
		}
		doc.Columns = append(doc.Columns, Column{})
		copy(doc.Columns[idx+1:], doc.Columns[idx:])
		doc.Columns[idx] = op.Column.clone()
		return nil

	case OpColumnRemove:
		kept := doc.Columns[:0]
		for _, col := range doc.Columns {
			if col.ID != op.ColumnID {
				kept = append(kept, col)
			}
		}
		doc.Columns = kept
		return nil

	case OpColumnReorder:
		byID := columnIndex(doc)
		reordered := make([]Column, 0, len(op.ColumnIDs))
		for _, id := range op.ColumnIDs {
			pos, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: reorder references unknown column %q", ErrInvalidOperation, id)
			}
			reordered = append(reordered, doc.Columns[pos])
		}
		doc.Columns = reordered
		return nil

	case OpColumnTitle:
		if pos, ok := columnIndex(doc)[op.ColumnID]; ok {
			return decodeString(op, &doc.Columns[pos].Title)
		}
		return nil

	case OpColumnPluginData:
		if pos, ok := columnIndex(doc)[op.ColumnID]; ok {
			doc.Columns[pos].PluginData = upsertPluginData(doc.Columns[pos].PluginData, op)
		}
		return nil

	case OpColumnCards:
		if pos, ok := columnIndex(doc)[op.ColumnID]; ok {
			cards := make([]Card, len(op.Cards))
			copy(cards, op.Cards)
			doc.Columns[pos].Cards = cards
		}
		return nil

	default:
		log.Printf("board: ignoring unknown operation type %q", op.Type)
		return nil
	}
}

// ApplyAll folds a batch in array order, stopping at the first failure.
func ApplyAll(doc *Board, ops []Operation) error {
	for i, op := range ops {
		if err := Apply(doc, op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// columnIndex maps column id to position. Ids are unique by invariant, so the
// map also removes any first-match ambiguity when locating a column.
func columnIndex(doc *Board) map[string]int {
	byID := make(map[string]int, len(doc.Columns))
	for i, col := range doc.Columns {
		byID[col.ID] = i
	}
	return byID
}

func decodeString(op Operation, target *string) error {
	var value string
	if err := json.Unmarshal(op.Value, &value); err != nil {
		return fmt.Errorf("%w: %s expects a string value", ErrInvalidOperation, op.Type)
	}
	*target = value
	return nil
}

// upsertPluginData writes op.Value under op.Key, deleting the key when the
// value is absent or JSON null. The map is created lazily.
func upsertPluginData(data map[string]json.RawMessage, op Operation) map[string]json.RawMessage {
	if len(op.Value) == 0 || string(op.Value) == "null" {
		delete(data, op.Key)
		return data
	}
	if data == nil {
		data = make(map[string]json.RawMessage)
	}
	data[op.Key] = append(json.RawMessage(nil), op.Value...)
	return data
}
