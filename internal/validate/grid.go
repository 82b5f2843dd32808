// Package validate checks the structure of level grids. It never looks at whether a grid is solvable.
package validate

import (
	"encoding/json"
	"fmt"
	"math"

	"nonogram/internal/errs"
	"nonogram/internal/models"
)

const (
	keyStatus = "status"
	keyColor  = "color"
)

// IsValidCell reports whether v is a well-formed cell. It accepts typed cells and decoded JSON objects.
func IsValidCell(v interface{}) bool {
	switch c := v.(type) {
	case models.Cell:
		return c.Status.Valid()
	case *models.Cell:
		return c != nil && c.Status.Valid()
	case map[string]interface{}:
		return validObject(c)
	default:
		return false
	}
}

func validObject(c map[string]interface{}) bool {
	status, ok := c[keyStatus]
	if !ok {
		return false
	}
	if _, ok := statusOf(status); !ok {
		return false
	}
	if color, ok := c[keyColor]; ok {
		if _, isString := color.(string); !isString {
			return false
		}
	}
	for key := range c {
		if key != keyStatus && key != keyColor {
			return false
		}
	}
	return true
}

// statusOf accepts the numeric kinds a status can arrive as
func statusOf(v interface{}) (models.CellStatus, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case models.CellStatus:
		f = float64(n)
	default:
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	s := models.CellStatus(f)
	return s, s.Valid()
}

// IsValidGrid reports whether v is a non-empty rectangular grid of valid cells
func IsValidGrid(v interface{}) bool {
	_, err := ParseGrid(v)
	return err == nil
}

// ParseGrid validates v and returns it as a typed grid. Accepted inputs are typed grids,
// decoded JSON arrays and JSON text. The first violated rule is reported as an ErrValidation.
func ParseGrid(v interface{}) (models.Grid, error) {
	switch g := v.(type) {
	case nil:
		return nil, errs.Validation("grid is required")
	case models.Grid:
		return checkTyped(g)
	case [][]models.Cell:
		return checkTyped(models.Grid(g))
	case models.GridJSON:
		return parseText(g)
	case json.RawMessage:
		return parseText(g)
	case []byte:
		return parseText(g)
	case []interface{}:
		return checkUntyped(g)
	default:
		return nil, errs.Validation("grid must be an array of rows")
	}
}

func parseText(b []byte) (models.Grid, error) {
	if len(b) == 0 {
		return nil, errs.Validation("grid is required")
	}
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, errs.Validation("grid is not valid JSON: %v", err)
	}
	if decoded == nil {
		return nil, errs.Validation("grid is required")
	}
	return ParseGrid(decoded)
}

func checkTyped(g models.Grid) (models.Grid, error) {
	if len(g) == 0 {
		return nil, errs.Validation("grid must have at least one row")
	}
	cols := len(g[0])
	if cols == 0 {
		return nil, errs.Validation("grid must have at least one column")
	}
	for r, row := range g {
		if len(row) != cols {
			return nil, errs.Validation("grid must have the same number of columns in each row (row %d has %d, want %d)", r, len(row), cols)
		}
		for c, cell := range row {
			if !cell.Status.Valid() {
				return nil, errs.Validation("grid contains an invalid cell at %d,%d", r, c)
			}
		}
	}
	return g, nil
}

func checkUntyped(rows []interface{}) (models.Grid, error) {
	if len(rows) == 0 {
		return nil, errs.Validation("grid must have at least one row")
	}
	out := make(models.Grid, len(rows))
	cols := -1
	for r, rawRow := range rows {
		row, ok := rawRow.([]interface{})
		if !ok {
			return nil, errs.Validation("grid row %d is not an array", r)
		}
		if cols == -1 {
			cols = len(row)
			if cols == 0 {
				return nil, errs.Validation("grid must have at least one column")
			}
		}
		if len(row) != cols {
			return nil, errs.Validation("grid must have the same number of columns in each row (row %d has %d, want %d)", r, len(row), cols)
		}
		out[r] = make([]models.Cell, len(row))
		for c, rawCell := range row {
			obj, ok := rawCell.(map[string]interface{})
			if !ok || !validObject(obj) {
				return nil, errs.Validation("grid contains an invalid cell at %d,%d", r, c)
			}
			status, _ := statusOf(obj[keyStatus])
			cell := models.Cell{Status: status}
			if color, ok := obj[keyColor].(string); ok {
				cell.Color = &color
			}
			out[r][c] = cell
		}
	}
	return out, nil
}

// GridSize formats the dimensions of g as "<rows>x<cols>"
func GridSize(g models.Grid) string {
	return fmt.Sprintf("%dx%d", g.Rows(), g.Cols())
}
