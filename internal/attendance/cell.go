// Package attendance locates a person's row and a date's column in a roster
// grid and marks the intersecting cell present.
package attendance

import (
	"strconv"
	"time"
)

// Kind tags the value held by a Cell.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "empty"
	}
}

// Cell is a single spreadsheet value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Date   time.Time
}

func Empty() Cell { return Cell{} }
func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }
func Number(f float64) Cell { return Cell{Kind: KindNumber, Number: f} }
func Date(t time.Time) Cell { return Cell{Kind: KindDate, Date: t} }
func (c Cell) IsEmpty() bool { return c.Kind == KindEmpty }
func (c Cell) Equal(o Cell) bool { return c.Kind == o.Kind && c.String() == o.String() }

// String coerces the cell to text.
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindDate:
		return c.Date.Format(dateLayout)
	default:
		return ""
	}
}

// Edit is one recorded write through Grid.Set.
type Edit struct {
	Address string
	Row     int // 1-based
	Col     int // 1-based
	Cell    Cell
}

// Grid is an in-memory rows-of-cells view of one worksheet. Row 0 is the
// header row. Rows are not assumed to be rectangular.
type Grid struct {
	Rows  [][]Cell
	edits []Edit
}

// NewGrid wraps rows without copying them.
func NewGrid(rows [][]Cell) *Grid {
	return &Grid{Rows: rows}
}

// At returns the cell at 0-based (row, col), or an empty cell when the
// position lies outside the grid.
func (g *Grid) At(row, col int) Cell {
	if row < 0 || row >= len(g.Rows) {
		return Empty()
	}
	r := g.Rows[row]
	if col < 0 || col >= len(r) {
		return Empty()
	}
	return r[col]
}

// Set writes cell at an A1-style address, growing the grid as needed, and
// records the write so storage can replay it.
func (g *Grid) Set(address string, cell Cell) error {
	row, col, err := ParseAddress(address)
	if err != nil {
		return err
	}
	for len(g.Rows) < row {
		g.Rows = append(g.Rows, nil)
	}
	r := g.Rows[row-1]
	for len(r) < col {
		r = append(r, Empty())
	}
	r[col-1] = cell
	g.Rows[row-1] = r
	g.edits = append(g.edits, Edit{Address: address, Row: row, Col: col, Cell: cell})
	return nil
}

// Edits returns the writes made through Set, oldest first.
func (g *Grid) Edits() []Edit {
	out := make([]Edit, len(g.edits))
	copy(out, g.edits)
	return out
}

// Clone returns a deep copy, including recorded edits.
func (g *Grid) Clone() *Grid {
	rows := make([][]Cell, len(g.Rows))
	for i, r := range g.Rows {
		if r == nil {
			continue
		}
		rows[i] = append([]Cell(nil), r...)
	}
	return &Grid{Rows: rows, edits: g.Edits()}
}
