package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CellStatus is the solve state of a single grid position
type CellStatus int

const (
	CellEmpty  CellStatus = 0
	CellFilled CellStatus = 1
	CellMarked CellStatus = 2
)

// Valid reports whether s is one of the known statuses
func (s CellStatus) Valid() bool {
	return s == CellEmpty || s == CellFilled || s == CellMarked
}

// Cell is one position of a level grid
type Cell struct {
	Status CellStatus `json:"status"`
	Color  *string    `json:"color,omitempty"`
}

// Grid is a rectangular matrix of cells, row-major
type Grid [][]Cell

// Rows returns the number of rows
func (g Grid) Rows() int {
	return len(g)
}

// Cols returns the number of columns of the first row
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Clone returns a deep copy of the grid
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = make([]Cell, len(row))
		for c, cell := range row {
			if cell.Color != nil {
				color := *cell.Color
				cell.Color = &color
			}
			out[r][c] = cell
		}
	}
	return out
}

// GridJSON is the persisted form of a grid: the JSON document stored in the grid column.
// It is kept untyped so rows read back from the database can be re-validated.
type GridJSON json.RawMessage

// Value implements driver.Valuer
func (g GridJSON) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	return string(g), nil
}

// Scan implements sql.Scanner
func (g *GridJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*g = nil
	case []byte:
		*g = append((*g)[:0], v...)
	case string:
		*g = GridJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into GridJSON", value)
	}
	return nil
}

// MarshalJSON keeps the stored document as-is
func (g GridJSON) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte("null"), nil
	}
	return g, nil
}

// UnmarshalJSON stores a copy of the document
func (g *GridJSON) UnmarshalJSON(data []byte) error {
	*g = append((*g)[:0], data...)
	return nil
}

// EncodeGrid serializes a typed grid for persistence
func EncodeGrid(g Grid) (GridJSON, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return GridJSON(b), nil
}
