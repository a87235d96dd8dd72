package attendance

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Present is the marker written into an attended cell.
const Present = "P"

const dateLayout = "2006-01-02"

// NormalizeDate renders a header cell for comparison with a canonical
// "YYYY-MM-DD" date. Dates use their own calendar day with no zone
// conversion; text passes through untouched.
func NormalizeDate(c Cell) string {
	if c.Kind == KindDate {
		return c.Date.Format(dateLayout)
	}
	return c.String()
}

// ResolveColumn returns the 0-based index of the first header cell whose
// normalized value equals date.
func ResolveColumn(g *Grid, date string) (int, bool) {
	if len(g.Rows) == 0 {
		return 0, false
	}
	header := g.Rows[0]
	normalized := make([]string, len(header))
	for i, c := range header {
		normalized[i] = NormalizeDate(c)
	}
	for i, v := range normalized {
		if v == date {
			return i, true
		}
	}
	return 0, false
}

// ResolveRow returns the 0-based index of the first data row whose name
// starts with query, ignoring case and surrounding whitespace. Rows with an
// empty name cell never match. When several names share the prefix the
// topmost one wins.
func ResolveRow(g *Grid, query string) (int, bool) {
	q := normalizeName(query)
	for i := 1; i < len(g.Rows); i++ {
		name := normalizeName(g.At(i, 0).String())
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, q) {
			return i, true
		}
	}
	return 0, false
}

// ApplyMark writes Present at 0-based (row, col). Marking an already
// marked cell leaves the grid unchanged in effect.
func ApplyMark(g *Grid, row, col int) (string, error) {
	address := Address(row+1, col+1)
	if err := g.Set(address, Text(Present)); err != nil {
		return "", err
	}
	return address, nil
}

func normalizeName(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
