package board

import "encoding/json"

// OpKind enumerates the wire-level operation types. Kinds not listed here may
// arrive from newer clients and are skipped during the fold.
type OpKind string

const (
	OpBoardName            OpKind = "board:name"
	OpBoardBackgroundImage OpKind = "board:backgroundImage"
	OpBoardPluginData      OpKind = "board:pluginData"
	OpColumnAdd            OpKind = "column:add"
	OpColumnRemove         OpKind = "column:remove"
	OpColumnReorder        OpKind = "column:reorder"
	OpColumnTitle          OpKind = "column:title"
	OpColumnPluginData     OpKind = "column:pluginData"
	OpColumnCards          OpKind = "column:cards"
)

// Operation is a single typed mutation of a board document. Only the fields
// relevant to its kind are populated; the rest stay empty on the wire.
type Operation struct {
	Type OpKind `json:"type"`

	// Value carries the new scalar for board:name, board:backgroundImage and
	// column:title, and the arbitrary payload for the pluginData kinds where a
	// JSON null (or absence) means "delete the key".
	Value json.RawMessage `json:"value,omitempty"`
	Key   string          `json:"key,omitempty"`

	Index  int     `json:"index,omitempty"`
	Column *Column `json:"column,omitempty"`

	ColumnID  string   `json:"columnId,omitempty"`
	ColumnIDs []string `json:"columnIds,omitempty"`
	Cards     []Card   `json:"cards,omitempty"`
}
